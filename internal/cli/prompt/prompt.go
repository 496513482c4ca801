// Package prompt wraps promptui for the interactive install commands.
package prompt

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user presses Ctrl+C.
var ErrAborted = errors.New("aborted")

func wrapError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return ErrAborted
	}
	return err
}

// Confirm asks a yes/no question. Empty input picks defaultYes.
func Confirm(label string, defaultYes bool) (bool, error) {
	def := "y/N"
	if defaultYes {
		def = "Y/n"
	}
	p := promptui.Prompt{Label: fmt.Sprintf("%s [%s]", label, def), IsConfirm: true}
	res, err := p.Run()
	if err != nil {
		switch {
		case errors.Is(err, promptui.ErrAbort):
			// promptui reports "n" and empty input as ErrAbort.
			if strings.TrimSpace(res) == "" {
				return defaultYes, nil
			}
			return false, nil
		default:
			return false, wrapError(err)
		}
	}
	res = strings.ToLower(strings.TrimSpace(res))
	return res == "y" || res == "yes", nil
}

// ConfirmWithForce skips the question when force is set.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}

func Input(label, def string) (string, error) {
	p := promptui.Prompt{Label: label, Default: def}
	res, err := p.Run()
	return strings.TrimSpace(res), wrapError(err)
}

func InputPort(label string, def int) (int, error) {
	p := promptui.Prompt{Label: label, Default: strconv.Itoa(def), Validate: ValidatePort}
	res, err := p.Run()
	if err != nil {
		return 0, wrapError(err)
	}
	port, _ := strconv.Atoi(strings.TrimSpace(res))
	return port, nil
}

func InputURL(label, def string) (string, error) {
	p := promptui.Prompt{Label: label, Default: def, Validate: ValidateURL}
	res, err := p.Run()
	return strings.TrimSpace(res), wrapError(err)
}

func ValidatePort(s string) error {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return errors.New("must be a valid integer")
	}
	if port < 1 || port > 65535 {
		return errors.New("must be a valid port (1-65535)")
	}
	return nil
}

func ValidateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL, e.g. http://192.168.1.10:8079")
	}
	return nil
}
