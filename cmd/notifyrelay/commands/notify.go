package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"notifyrelay/internal/notify"
)

// notifyTimeout bounds one client POST.
const notifyTimeout = 5 * time.Second

type notifyOptions struct {
	url      string
	stdin    bool
	req      notify.Request
	category string
	timeout  int
	wait     bool
	reply    bool
	actions  []string
}

func newNotifyCmd(g *globals) *cobra.Command {
	o := &notifyOptions{}
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a notification to the relay",
		Long: `Send a notification to the relay named in agent.json (or --url).

With --stdin the request body is read from standard input as JSON and
forwarded unchanged, which suits hook scripts.`,
		Example: `  notifyrelay notify --title my-repo --message "tests passed" --category success
  echo '{"title":"t","message":"m","category":"question"}' | notifyrelay notify --stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url := o.url
			if url == "" {
				var err error
				if url, err = defaultMasterURL(g); err != nil {
					return err
				}
			}

			var body []byte
			if o.stdin {
				b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), notify.MaxBodyBytes))
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				body = b
			} else {
				req := o.request(cmd)
				if err := notify.Validate(req); err != nil {
					return err
				}
				b, err := json.Marshal(req)
				if err != nil {
					return err
				}
				body = b
			}

			resp, err := postNotify(cmd.Context(), url, body)
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", resp.Message)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.url, "url", "", "relay URL (default: agent.json masterUrl)")
	f.BoolVar(&o.stdin, "stdin", false, "read the JSON request body from stdin")
	f.StringVarP(&o.req.Title, "title", "t", "", "notification title")
	f.StringVarP(&o.req.Message, "message", "m", "", "notification message")
	f.StringVarP(&o.category, "category", "c", string(notify.CategoryInfo), "question, success, error, info or stop")
	f.StringVar(&o.req.Cwd, "cwd", "", "working directory name shown as subtitle fallback (default: current directory name)")
	f.StringVar(&o.req.Subtitle, "subtitle", "", "subtitle")
	f.StringVar(&o.req.Sound, "sound", "", "sound name")
	f.StringVar(&o.req.Icon, "icon", "", "icon path or URL")
	f.StringVar(&o.req.ContentImage, "content-image", "", "content image path or URL")
	f.IntVar(&o.timeout, "timeout", 0, "seconds before the notification is dismissed")
	f.BoolVar(&o.wait, "wait", false, "wait for user interaction")
	f.StringVar(&o.req.Open, "open", "", "URL opened when the notification is clicked")
	f.StringSliceVar(&o.actions, "action", nil, "action button label (repeatable)")
	f.StringVar(&o.req.CloseLabel, "close-label", "", "close button label")
	f.StringVar(&o.req.DropdownLabel, "dropdown-label", "", "actions dropdown label")
	f.BoolVar(&o.reply, "reply", false, "allow a reply")
	return cmd
}

// request assembles the notify request. Optional numeric and boolean
// fields are sent only when their flag was given.
func (o *notifyOptions) request(cmd *cobra.Command) notify.Request {
	req := o.req
	req.Category = notify.Category(strings.TrimSpace(o.category))
	if req.Cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			req.Cwd = filepath.Base(wd)
		}
	}
	if cmd.Flags().Changed("timeout") {
		t := o.timeout
		req.Timeout = &t
	}
	if cmd.Flags().Changed("wait") {
		w := o.wait
		req.Wait = &w
	}
	if cmd.Flags().Changed("reply") {
		r := o.reply
		req.Reply = &r
	}
	if len(o.actions) > 0 {
		req.Actions = notify.Actions(o.actions)
	}
	return req
}

func postNotify(ctx context.Context, baseURL string, body []byte) (*notify.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/notify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	var out notify.Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return nil, fmt.Errorf("post %s: %s", url, resp.Status)
	}
	if resp.StatusCode/100 != 2 || !out.Success {
		return nil, fmt.Errorf("relay rejected notification: %s", out.Message)
	}
	return &out, nil
}
