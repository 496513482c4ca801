package prompt

import (
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
)

func TestValidatePort(t *testing.T) {
	assert.NoError(t, ValidatePort("8079"))
	assert.NoError(t, ValidatePort(" 1 "))
	assert.Error(t, ValidatePort("0"))
	assert.Error(t, ValidatePort("65536"))
	assert.Error(t, ValidatePort("http"))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("http://10.0.0.2:8079"))
	assert.NoError(t, ValidateURL("https://relay.example.com"))
	assert.Error(t, ValidateURL("10.0.0.2:8079"))
	assert.Error(t, ValidateURL("ftp://x"))
	assert.Error(t, ValidateURL("http://"))
}

func TestConfirmWithForceSkipsPrompt(t *testing.T) {
	ok, err := ConfirmWithForce("reinstall?", true)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestWrapError(t *testing.T) {
	assert.ErrorIs(t, wrapError(promptui.ErrInterrupt), ErrAborted)
	assert.ErrorIs(t, wrapError(promptui.ErrEOF), ErrAborted)
	assert.NoError(t, wrapError(nil))
}
