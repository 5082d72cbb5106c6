package navigation_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/vip-checkout/internal/navigation"
)

type recordingNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (r *recordingNavigator) Navigate(_ context.Context, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
	return nil
}

func (r *recordingNavigator) visited() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targets...)
}

var _ = Describe("Navigation", func() {
	var slogger *slog.Logger

	BeforeEach(func() {
		slogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	DescribeTable("ValidateTarget",
		func(target string, ok bool) {
			err := navigation.ValidateTarget(target)
			if ok {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(HaveOccurred())
			}
		},
		Entry("https url", "https://pay.example/x", true),
		Entry("http url", "http://localhost:5173/dashboard", true),
		Entry("relative path", "/dashboard", false),
		Entry("javascript scheme", "javascript:alert(1)", false),
		Entry("empty", "", false),
	)

	It("redirects an HTTP response with 303", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/redirect", nil)
		w := httptest.NewRecorder()

		Expect(navigation.NewResponseNavigator(w, req).Navigate(context.Background(), "https://pay.example/x")).To(Succeed())
		Expect(w.Code).To(Equal(http.StatusSeeOther))
		Expect(w.Header().Get("Location")).To(Equal("https://pay.example/x"))
	})

	Describe("Schedule", func() {
		It("navigates after the delay", func() {
			nav := &recordingNavigator{}
			scheduled := navigation.Schedule(nav, "http://localhost:5173/dashboard", 10*time.Millisecond, slogger)

			Expect(nav.visited()).To(BeEmpty())
			Eventually(scheduled.Done()).Should(BeClosed())
			Expect(scheduled.Err()).NotTo(HaveOccurred())
			Expect(nav.visited()).To(Equal([]string{"http://localhost:5173/dashboard"}))
		})

		It("can be stopped before firing", func() {
			nav := &recordingNavigator{}
			scheduled := navigation.Schedule(nav, "http://localhost:5173/dashboard", time.Hour, slogger)

			Expect(scheduled.Stop()).To(BeTrue())
			Expect(scheduled.Done()).To(BeClosed())
			Expect(scheduled.Err()).To(MatchError(context.Canceled))
			Expect(nav.visited()).To(BeEmpty())
		})
	})
})
