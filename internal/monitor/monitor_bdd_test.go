package monitor_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/domtest"
	"github.com/eliteGoblin/pathfinder/internal/monitor"
)

var _ = Describe("Monitor", func() {
	var (
		source   *domtest.EventSource
		mon      *monitor.Monitor
		received []domain.DetectedActionEvent
		button   *domtest.Node
		other    *domtest.Node
		input    *domtest.Node
		hover    *domtest.Node
		plain    *domtest.Node
		base     time.Time
	)

	at := func(ms int) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }

	fire := func(t domain.EventType, el *domtest.Node, ms int) {
		source.Fire(domain.DOMEvent{Type: t, Target: el, Timestamp: at(ms)})
	}

	BeforeEach(func() {
		base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		source = domtest.NewEventSource()
		mon = monitor.New(source, monitor.NewBus(), monitor.DefaultConfig(), zap.NewNop())
		received = nil
		mon.Bus().Subscribe(func(ev domain.DetectedActionEvent) {
			received = append(received, ev)
		})

		button = domtest.El("button", "id=save")
		other = domtest.El("button", "id=cancel")
		input = domtest.El("input", "name=url")
		hover = domtest.El("div", "data-hoverable=true")
		plain = domtest.El("div")
		domtest.El("body").Append(button, other, input, hover, plain)
	})

	Describe("listener lifecycle", func() {
		It("attaches on first enable and detaches on last disable", func() {
			Expect(source.ListenerCount(domain.EventClick)).To(Equal(0))
			mon.Enable()
			mon.Enable()
			Expect(source.ListenerCount(domain.EventClick)).To(Equal(1))
			mon.Disable()
			Expect(source.ListenerCount(domain.EventClick)).To(Equal(1))
			mon.Disable()
			Expect(source.ListenerCount(domain.EventClick)).To(Equal(0))
			Expect(mon.IsEnabled()).To(BeFalse())
		})

		It("ignores events while disabled", func() {
			fire(domain.EventClick, button, 0)
			Expect(received).To(BeEmpty())
		})
	})

	Context("when enabled", func() {
		BeforeEach(func() {
			mon.Enable()
		})

		It("broadcasts a classified click", func() {
			fire(domain.EventClick, button, 0)
			Expect(received).To(HaveLen(1))
			Expect(received[0].ActionType).To(Equal(domain.ActionButton))
			Expect(received[0].Element).To(BeIdenticalTo(domain.Element(button)))
		})

		It("emits one action for two clicks on the same element within the debounce window", func() {
			fire(domain.EventClick, button, 0)
			fire(domain.EventClick, button, 30)
			Expect(received).To(HaveLen(1))
		})

		It("emits again once the debounce window has passed", func() {
			fire(domain.EventClick, button, 0)
			fire(domain.EventClick, button, 60)
			Expect(received).To(HaveLen(2))
		})

		It("does not debounce across different elements", func() {
			fire(domain.EventClick, button, 0)
			fire(domain.EventClick, other, 10)
			Expect(received).To(HaveLen(2))
		})

		It("collapses Enter followed by the synthetic click", func() {
			source.Fire(domain.DOMEvent{Type: domain.EventKeyDown, Target: button, Key: "Enter", Timestamp: at(0)})
			fire(domain.EventClick, button, 5)
			Expect(received).To(HaveLen(1))
			Expect(received[0].ActionType).To(Equal(domain.ActionButton))
		})

		It("ignores Space typed into a text field", func() {
			source.Fire(domain.DOMEvent{Type: domain.EventKeyDown, Target: input, Key: " ", Timestamp: at(0)})
			source.Fire(domain.DOMEvent{Type: domain.EventKeyDown, Target: input, Key: "a", Timestamp: at(100)})
			Expect(received).To(BeEmpty())
		})

		It("carries the live value of form fields", func() {
			input.Val = "https://x"
			fire(domain.EventInput, input, 0)
			Expect(received).To(HaveLen(1))
			Expect(received[0].ActionType).To(Equal(domain.ActionFormfill))
			Expect(received[0].Value).NotTo(BeNil())
			Expect(*received[0].Value).To(Equal("https://x"))
		})

		It("forwards mouseenter only for hover targets", func() {
			fire(domain.EventMouseEnter, button, 0)
			fire(domain.EventMouseEnter, hover, 100)
			Expect(received).To(HaveLen(1))
			Expect(received[0].ActionType).To(Equal(domain.ActionHover))
		})

		It("never forwards a click classified as hover", func() {
			fire(domain.EventClick, hover, 0)
			Expect(received).To(BeEmpty())
		})

		It("rejects bare decorative containers", func() {
			fire(domain.EventClick, plain, 0)
			Expect(received).To(BeEmpty())
		})

		It("keeps at most ten recent actions", func() {
			for i := 0; i < 12; i++ {
				fire(domain.EventClick, button, i*100)
			}
			Expect(received).To(HaveLen(12))
			recent := mon.RecentActions()
			Expect(recent).To(HaveLen(10))
			Expect(recent[0].Timestamp).To(Equal(at(200)))
		})

		It("delivers to every subscriber", func() {
			var second int
			mon.Bus().Subscribe(func(domain.DetectedActionEvent) { second++ })
			fire(domain.EventClick, button, 0)
			Expect(received).To(HaveLen(1))
			Expect(second).To(Equal(1))
		})

		It("survives a classification panic and keeps monitoring", func() {
			source.Fire(domain.DOMEvent{Type: domain.EventClick, Target: panicky{}, Timestamp: at(0)})
			Expect(received).To(BeEmpty())
			fire(domain.EventClick, button, 10)
			Expect(received).To(HaveLen(1))
		})
	})

	Describe("force override", func() {
		It("suppresses events regardless of references and clears the queue", func() {
			mon.Enable()
			fire(domain.EventClick, button, 0)
			Expect(mon.RecentActions()).To(HaveLen(1))

			mon.ForceDisable()
			Expect(mon.IsEnabled()).To(BeFalse())
			Expect(mon.RecentActions()).To(BeEmpty())
			Expect(source.ListenerCount(domain.EventClick)).To(Equal(0))

			mon.ForceEnable()
			Expect(mon.IsEnabled()).To(BeTrue())
			fire(domain.EventClick, button, 10)
			Expect(received).To(HaveLen(2))
		})

		It("does not resurrect monitoring without references", func() {
			mon.ForceDisable()
			mon.ForceEnable()
			Expect(mon.IsEnabled()).To(BeFalse())
		})
	})

	It("Reset returns to the zero state", func() {
		mon.Enable()
		mon.ForceDisable()
		mon.Reset()
		Expect(mon.State()).To(Equal(monitor.State{}))
		Expect(source.ListenerCount(domain.EventClick)).To(Equal(0))
	})
})

// panicky is an element whose DOM access fails.
type panicky struct{}

func (panicky) TagName() string            { panic("detached node") }
func (panicky) Attr(string) (string, bool) { panic("detached node") }
func (panicky) HasClass(string) bool       { panic("detached node") }
func (panicky) Parent() domain.Element     { return nil }
func (panicky) TextContent() string        { return "" }
func (panicky) Value() string              { return "" }
func (panicky) BoundingRect() domain.Rect  { return domain.Rect{} }
func (panicky) HasClickHandler() bool      { return false }
func (panicky) IsContentEditable() bool    { return false }
