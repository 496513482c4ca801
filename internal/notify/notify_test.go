package notify

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		req     Request
		missing []string
		invalid []string
	}{
		{name: "ok", req: Request{Title: "t", Message: "m", Category: CategoryInfo}},
		{name: "empty title", req: Request{Title: "", Message: "x", Category: CategoryInfo}, missing: []string{"title"}},
		{name: "all missing", req: Request{}, missing: []string{"title", "message", "category"}},
		{name: "unknown category", req: Request{Title: "t", Message: "m", Category: "warning"}, invalid: []string{"category"}},
		{name: "negative timeout", req: Request{Title: "t", Message: "m", Category: CategoryStop, Timeout: intPtr(-1)}, invalid: []string{"timeout"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.req)
			if tc.missing == nil && tc.invalid == nil {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Equal(t, tc.missing, verr.Missing)
			assert.Equal(t, tc.invalid, verr.Invalid)
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Missing: []string{"title", "message"}, Invalid: []string{"category"}}
	assert.Equal(t, "missing required fields: title, message; invalid fields: category", err.Error())
	assert.Equal(t, "bad body", (&ValidationError{Reason: "bad body"}).Error())
}

func TestDecodeCanonical(t *testing.T) {
	body := `{"title":"repo","message":"done","category":"success","timeout":10,"wait":true,"actions":["Open","Dismiss"],"reply":true}`
	req, legacy, err := Decode(strings.NewReader(body))
	require.NoError(t, err)
	assert.False(t, legacy)
	assert.Equal(t, CategorySuccess, req.Category)
	require.NotNil(t, req.Timeout)
	assert.Equal(t, 10, *req.Timeout)
	require.NotNil(t, req.Wait)
	assert.True(t, *req.Wait)
	assert.Equal(t, Actions{"Open", "Dismiss"}, req.Actions)
	require.NotNil(t, req.Reply)
}

func TestDecodeLegacyShape(t *testing.T) {
	body := `{"title":"my-project","message":"which db?","project":"/home/u/my-project","cwd":"","type":"question","timestamp":"2025-01-01T00:00:00Z","action":"focus"}`
	req, legacy, err := Decode(strings.NewReader(body))
	require.NoError(t, err)
	assert.True(t, legacy)
	assert.Equal(t, CategoryQuestion, req.Category)
	assert.Equal(t, "my-project", req.Cwd)
	require.NoError(t, Validate(req))
}

func TestDecodeCategoryWinsOverType(t *testing.T) {
	req, legacy, err := Decode(strings.NewReader(`{"title":"a","message":"b","category":"error","type":"info"}`))
	require.NoError(t, err)
	assert.True(t, legacy)
	assert.Equal(t, CategoryError, req.Category)
}

func TestDecodeRejectsMalformedBodies(t *testing.T) {
	for _, body := range []string{"", "{", `{"title": 3}`, `{"actions": 7}`} {
		_, _, err := Decode(strings.NewReader(body))
		require.Error(t, err, body)
		assert.ErrorIs(t, err, ErrValidation, body)
	}
}

func TestActionsAcceptsStringOrList(t *testing.T) {
	var a Actions
	require.NoError(t, json.Unmarshal([]byte(`"Reply"`), &a))
	assert.Equal(t, Actions{"Reply"}, a)
	require.NoError(t, json.Unmarshal([]byte(`["A","B"]`), &a))
	assert.Equal(t, Actions{"A", "B"}, a)
	require.NoError(t, json.Unmarshal([]byte(`null`), &a))
	assert.Nil(t, a)
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("").Valid())
	assert.False(t, Category("QUESTION").Valid())
}

func intPtr(v int) *int { return &v }
