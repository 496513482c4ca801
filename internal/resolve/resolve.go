// Package resolve merges a notify request with operator configuration.
//
// Every presentation field is taken from the first tier that sets it, in
// this order: request, environment, config file, compiled default. The
// merge is pure: it performs no I/O and never mutates a tier.
package resolve

import (
	"path/filepath"
	"strings"
	"sync/atomic"

	"notifyrelay/internal/config"
	"notifyrelay/internal/notify"
)

const (
	DefaultTimeout = 5
	DefaultWait    = false

	SoundQuestion = "Ping"
	SoundError    = "Basso"
	SoundStop     = "Glass"
	SoundDefault  = "default"
)

// Tier names the layer a resolved value came from.
type Tier int

const (
	TierDefault Tier = iota
	TierFile
	TierEnv
	TierRequest
	// TierCwd marks a subtitle taken from the request's cwd.
	TierCwd
)

func (t Tier) String() string {
	switch t {
	case TierFile:
		return "file"
	case TierEnv:
		return "env"
	case TierRequest:
		return "request"
	case TierCwd:
		return "cwd"
	default:
		return "default"
	}
}

// Sources records the tier each resolved field came from. Empty fields that
// no tier set report TierDefault.
type Sources struct {
	Sound        Tier
	Subtitle     Tier
	Icon         Tier
	ContentImage Tier
	Timeout      Tier
	Wait         Tier
}

// Resolve merges req with the file and env tiers. baseDir anchors relative
// icon/contentImage paths.
func Resolve(req notify.Request, file, env config.NotifierConfig, baseDir string) notify.Notification {
	n, _ := Explain(req, file, env, baseDir)
	return n
}

// Explain is Resolve plus the tier each field was taken from.
func Explain(req notify.Request, file, env config.NotifierConfig, baseDir string) (notify.Notification, Sources) {
	var src Sources
	n := notify.Notification{
		Title:    req.Title,
		Message:  req.Message,
		Category: req.Category,

		Open:          req.Open,
		CloseLabel:    req.CloseLabel,
		Actions:       cloneActions(req.Actions),
		DropdownLabel: req.DropdownLabel,
		Reply:         req.Reply != nil && *req.Reply,
	}

	if s := strings.TrimSpace(req.Sound); s != "" {
		n.Sound, src.Sound = s, TierRequest
	} else {
		n.Sound, src.Sound = categorySound(req.Category, file, env)
	}

	n.Subtitle, src.Subtitle = firstString(
		tierValue{req.Subtitle, TierRequest},
		tierValue{env.Subtitle, TierEnv},
		tierValue{file.Subtitle, TierFile},
		tierValue{req.Cwd, TierCwd},
	)

	icon, iconSrc := firstString(
		tierValue{req.Icon, TierRequest},
		tierValue{env.Icon, TierEnv},
		tierValue{file.Icon, TierFile},
	)
	n.Icon, src.Icon = NormalizeLocator(icon, baseDir), iconSrc

	img, imgSrc := firstString(
		tierValue{req.ContentImage, TierRequest},
		tierValue{env.ContentImage, TierEnv},
		tierValue{file.ContentImage, TierFile},
	)
	n.ContentImage, src.ContentImage = NormalizeLocator(img, baseDir), imgSrc

	switch {
	case req.Timeout != nil:
		n.Timeout, src.Timeout = *req.Timeout, TierRequest
	case env.Timeout != nil:
		n.Timeout, src.Timeout = *env.Timeout, TierEnv
	case file.Timeout != nil:
		n.Timeout, src.Timeout = *file.Timeout, TierFile
	default:
		n.Timeout = DefaultTimeout
	}

	switch {
	case req.Wait != nil:
		n.Wait, src.Wait = *req.Wait, TierRequest
	case env.Wait != nil:
		n.Wait, src.Wait = *env.Wait, TierEnv
	case file.Wait != nil:
		n.Wait, src.Wait = *file.Wait, TierFile
	default:
		n.Wait = DefaultWait
	}

	return n, src
}

// categorySound looks up the per-category sound: env override, then file
// override, then the compiled default. success and info share soundDefault.
func categorySound(c notify.Category, file, env config.NotifierConfig) (string, Tier) {
	pick := func(envV, fileV, def string) (string, Tier) {
		if s := strings.TrimSpace(envV); s != "" {
			return s, TierEnv
		}
		if s := strings.TrimSpace(fileV); s != "" {
			return s, TierFile
		}
		return def, TierDefault
	}
	switch c {
	case notify.CategoryQuestion:
		return pick(env.SoundQuestion, file.SoundQuestion, SoundQuestion)
	case notify.CategoryError:
		return pick(env.SoundError, file.SoundError, SoundError)
	case notify.CategoryStop:
		return pick(env.SoundStop, file.SoundStop, SoundStop)
	default:
		return pick(env.SoundDefault, file.SoundDefault, SoundDefault)
	}
}

type tierValue struct {
	v    string
	tier Tier
}

func firstString(vals ...tierValue) (string, Tier) {
	for _, tv := range vals {
		if strings.TrimSpace(tv.v) != "" {
			return tv.v, tv.tier
		}
	}
	return "", TierDefault
}

func cloneActions(a notify.Actions) notify.Actions {
	if a == nil {
		return nil
	}
	return append(notify.Actions(nil), a...)
}

// NormalizeLocator turns an icon or image reference into a scheme-qualified
// locator. http(s) and file URLs pass through; absolute paths get a file://
// prefix; relative paths are joined to baseDir first. Applying it twice is
// the same as applying it once.
func NormalizeLocator(v, baseDir string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	for _, scheme := range []string{"http://", "https://", "file://"} {
		if strings.HasPrefix(lower, scheme) {
			return v
		}
	}
	if filepath.IsAbs(v) {
		return "file://" + filepath.ToSlash(v)
	}
	return "file://" + filepath.ToSlash(filepath.Join(baseDir, v))
}

// Resolver holds the background tiers for a running relay. The env tier is
// fixed for the life of the process; the file tier may be swapped when the
// config file changes.
type Resolver struct {
	env     config.NotifierConfig
	file    atomic.Pointer[config.NotifierConfig]
	baseDir string
}

func New(file, env config.NotifierConfig, baseDir string) *Resolver {
	r := &Resolver{env: env, baseDir: baseDir}
	r.file.Store(&file)
	return r
}

// SetFile replaces the file tier used by subsequent resolutions.
func (r *Resolver) SetFile(file config.NotifierConfig) {
	r.file.Store(&file)
}

func (r *Resolver) File() config.NotifierConfig { return *r.file.Load() }
func (r *Resolver) Env() config.NotifierConfig  { return r.env }
func (r *Resolver) BaseDir() string             { return r.baseDir }

func (r *Resolver) Resolve(req notify.Request) notify.Notification {
	return Resolve(req, *r.file.Load(), r.env, r.baseDir)
}

func (r *Resolver) Explain(req notify.Request) (notify.Notification, Sources) {
	return Explain(req, *r.file.Load(), r.env, r.baseDir)
}
