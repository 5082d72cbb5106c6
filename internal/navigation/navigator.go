package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/browser"
)

// Navigator performs a full navigation away from the current execution context.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// ValidateTarget accepts only absolute http(s) URLs.
func ValidateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid navigation target: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("navigation target %q is not an absolute http(s) URL", target)
	}
	return nil
}

// BrowserNavigator opens targets in the user's default browser.
type BrowserNavigator struct {
	open   func(string) error
	logger *slog.Logger
}

func NewBrowserNavigator(logger *slog.Logger) *BrowserNavigator {
	return &BrowserNavigator{open: browser.OpenURL, logger: logger}
}

func (n *BrowserNavigator) Navigate(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Info("opening browser", "target", target)
	if err := n.open(target); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

// ResponseNavigator answers an HTTP request with a 303 to the target.
type ResponseNavigator struct {
	w http.ResponseWriter
	r *http.Request
}

func NewResponseNavigator(w http.ResponseWriter, r *http.Request) *ResponseNavigator {
	return &ResponseNavigator{w: w, r: r}
}

func (n *ResponseNavigator) Navigate(_ context.Context, target string) error {
	http.Redirect(n.w, n.r, target, http.StatusSeeOther)
	return nil
}

// Scheduled is a navigation that fires after a delay unless stopped.
type Scheduled struct {
	timer *time.Timer
	done  chan struct{}
	once  sync.Once
	err   error
}

// Schedule navigates to target after delay on its own goroutine.
func Schedule(nav Navigator, target string, delay time.Duration, logger *slog.Logger) *Scheduled {
	s := &Scheduled{done: make(chan struct{})}
	s.timer = time.AfterFunc(delay, func() {
		err := nav.Navigate(context.Background(), target)
		if err != nil {
			logger.Warn("delayed navigation failed", "target", target, "error", err)
		}
		s.finish(err)
	})
	return s
}

// Stop cancels a navigation that has not fired yet and reports whether it did.
func (s *Scheduled) Stop() bool {
	if s.timer.Stop() {
		s.finish(context.Canceled)
		return true
	}
	return false
}

// Done is closed once the navigation ran or was stopped.
func (s *Scheduled) Done() <-chan struct{} {
	return s.done
}

// Err is the navigation result, valid after Done is closed.
func (s *Scheduled) Err() error {
	<-s.done
	return s.err
}

func (s *Scheduled) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
