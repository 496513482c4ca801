package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"notifyrelay/internal/config"
	"notifyrelay/internal/notify"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestResolveDefaultsAreTotal(t *testing.T) {
	for _, c := range notify.Categories() {
		n := Resolve(notify.Request{Title: "t", Message: "m", Category: c}, config.NotifierConfig{}, config.NotifierConfig{}, "/base")
		assert.NotEmpty(t, n.Sound, c)
		assert.Equal(t, DefaultTimeout, n.Timeout, c)
		assert.False(t, n.Wait, c)
		assert.Empty(t, n.Subtitle)
		assert.Empty(t, n.Icon)
		assert.Equal(t, c, n.Category)
	}
}

func TestResolveCategorySounds(t *testing.T) {
	cases := map[notify.Category]string{
		notify.CategoryQuestion: "Ping",
		notify.CategoryError:    "Basso",
		notify.CategoryStop:     "Glass",
		notify.CategorySuccess:  "default",
		notify.CategoryInfo:     "default",
	}
	for c, want := range cases {
		n := Resolve(notify.Request{Title: "t", Message: "m", Category: c}, config.NotifierConfig{}, config.NotifierConfig{}, "")
		assert.Equal(t, want, n.Sound, c)
	}
}

func TestResolveSoundPrecedence(t *testing.T) {
	req := notify.Request{Title: "t", Message: "m", Category: notify.CategoryError}
	file := config.NotifierConfig{SoundError: "FileSound"}
	env := config.NotifierConfig{SoundError: "EnvSound"}

	assert.Equal(t, "FileSound", Resolve(req, file, config.NotifierConfig{}, "").Sound)
	assert.Equal(t, "EnvSound", Resolve(req, file, env, "").Sound)

	req.Sound = "Tink"
	n, src := Explain(req, file, env, "")
	assert.Equal(t, "Tink", n.Sound)
	assert.Equal(t, TierRequest, src.Sound)
}

func TestResolveRequestWinsEveryField(t *testing.T) {
	file := config.NotifierConfig{Subtitle: "f", Icon: "/f.png", ContentImage: "/f.jpg", Timeout: intPtr(1), Wait: boolPtr(false)}
	env := config.NotifierConfig{Subtitle: "e", Icon: "/e.png", ContentImage: "/e.jpg", Timeout: intPtr(2), Wait: boolPtr(false)}
	req := notify.Request{
		Title: "t", Message: "m", Category: notify.CategoryInfo,
		Subtitle: "r", Icon: "https://x/r.png", ContentImage: "/r.jpg", Timeout: intPtr(0), Wait: boolPtr(true),
	}

	n, src := Explain(req, file, env, "/base")
	assert.Equal(t, "r", n.Subtitle)
	assert.Equal(t, "https://x/r.png", n.Icon)
	assert.Equal(t, "file:///r.jpg", n.ContentImage)
	assert.Equal(t, 0, n.Timeout, "explicit zero must not fall through")
	assert.True(t, n.Wait)
	assert.Equal(t, Sources{Sound: TierDefault, Subtitle: TierRequest, Icon: TierRequest, ContentImage: TierRequest, Timeout: TierRequest, Wait: TierRequest}, src)
}

func TestResolveEnvBeatsFile(t *testing.T) {
	file := config.NotifierConfig{Subtitle: "f", Timeout: intPtr(11), Wait: boolPtr(true)}
	env := config.NotifierConfig{Subtitle: "e", Timeout: intPtr(22)}
	n := Resolve(notify.Request{Title: "t", Message: "m", Category: notify.CategoryStop}, file, env, "")
	assert.Equal(t, "e", n.Subtitle)
	assert.Equal(t, 22, n.Timeout)
	assert.True(t, n.Wait, "wait falls through to the file tier")
}

func TestResolveSubtitleFallsBackToCwd(t *testing.T) {
	req := notify.Request{Title: "t", Message: "m", Category: notify.CategoryInfo, Cwd: "my-repo"}
	n, src := Explain(req, config.NotifierConfig{}, config.NotifierConfig{}, "")
	assert.Equal(t, "my-repo", n.Subtitle)
	assert.Equal(t, TierCwd, src.Subtitle)

	n = Resolve(req, config.NotifierConfig{Subtitle: "file"}, config.NotifierConfig{}, "")
	assert.Equal(t, "file", n.Subtitle)
}

func TestResolvePassthroughCopiedVerbatim(t *testing.T) {
	req := notify.Request{
		Title: "t", Message: "m", Category: notify.CategoryQuestion,
		Open: "https://example.com", CloseLabel: "Later", Actions: notify.Actions{"Yes", "No"},
		DropdownLabel: "Pick", Reply: boolPtr(true),
	}
	n := Resolve(req, config.NotifierConfig{}, config.NotifierConfig{}, "")
	assert.Equal(t, "https://example.com", n.Open)
	assert.Equal(t, "Later", n.CloseLabel)
	assert.Equal(t, notify.Actions{"Yes", "No"}, n.Actions)
	assert.Equal(t, "Pick", n.DropdownLabel)
	assert.True(t, n.Reply)

	n.Actions[0] = "mutated"
	assert.Equal(t, "Yes", req.Actions[0], "resolved payload must not alias the request")
}

func TestResolveIsDeterministicAndDoesNotMutateTiers(t *testing.T) {
	file := config.NotifierConfig{Icon: "icons/a.png", Timeout: intPtr(3)}
	env := config.NotifierConfig{SoundDefault: "Pop"}
	req := notify.Request{Title: "t", Message: "m", Category: notify.CategorySuccess}

	first := Resolve(req, file, env, "/srv")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Resolve(req, file, env, "/srv"))
	}
	assert.Equal(t, "icons/a.png", file.Icon)
	assert.Equal(t, 3, *file.Timeout)
	assert.Equal(t, "file:///srv/icons/a.png", first.Icon)
}

func TestNormalizeLocator(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"   ", ""},
		{"http://h/i.png", "http://h/i.png"},
		{"https://h/i.png", "https://h/i.png"},
		{"file:///tmp/i.png", "file:///tmp/i.png"},
		{"/abs/i.png", "file:///abs/i.png"},
		{"rel/i.png", "file:///base/rel/i.png"},
		{"../up.png", "file:///up.png"},
	}
	for _, tc := range cases {
		got := NormalizeLocator(tc.in, "/base")
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, got, NormalizeLocator(got, "/base"), "idempotent for %q", tc.in)
	}
}

func TestResolverSwapsFileTier(t *testing.T) {
	r := New(config.NotifierConfig{SoundQuestion: "Old"}, config.NotifierConfig{}, "/b")
	req := notify.Request{Title: "t", Message: "m", Category: notify.CategoryQuestion}
	require.Equal(t, "Old", r.Resolve(req).Sound)

	r.SetFile(config.NotifierConfig{SoundQuestion: "New"})
	assert.Equal(t, "New", r.Resolve(req).Sound)
	assert.Equal(t, "New", r.File().SoundQuestion)
}
