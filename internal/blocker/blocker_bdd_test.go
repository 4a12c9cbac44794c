package blocker_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/blocker"
	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/domtest"
	"github.com/eliteGoblin/pathfinder/internal/timeouts"
)

var _ = Describe("Blocker", func() {
	var (
		doc      *domtest.Document
		source   *domtest.EventSource
		overlays *domtest.OverlayHost
		modals   *domtest.ModalDetector
		timers   *timeouts.Manager
		b        *blocker.Blocker
		canceled int
		button   *domtest.Node
		input    *domtest.Node
		editor   *domtest.Node
	)

	cancel := func() { canceled++ }

	copyKey := func(target *domtest.Node) {
		source.Fire(domain.DOMEvent{Type: domain.EventKeyDown, Target: target, Key: "c", CtrlKey: true})
	}

	BeforeEach(func() {
		button = domtest.El("button")
		input = domtest.El("input")
		editor = domtest.El("p")
		doc = domtest.NewDocument(domtest.El("body").Append(
			button,
			input,
			domtest.El("div", "class=ProseMirror").Append(editor),
		))
		source = domtest.NewEventSource()
		overlays = &domtest.OverlayHost{}
		modals = &domtest.ModalDetector{}
		timers = timeouts.NewManager(zap.NewNop())
		b = blocker.New(doc, source, overlays, modals, timers, blocker.DefaultConfig(), zap.NewNop())
		canceled = 0
	})

	AfterEach(func() {
		b.ForceUnblock()
		timers.ClearAll()
	})

	Describe("single owner", func() {
		It("keeps the first section as owner", func() {
			Expect(b.StartSectionBlocking("A", blocker.SectionData{Title: "Add data source"}, cancel)).To(BeTrue())
			Expect(b.StartSectionBlocking("B", blocker.SectionData{}, cancel)).To(BeFalse())
			Expect(b.ActiveSection()).To(Equal("A"))
			Expect(overlays.ShowCalls).To(Equal(1))
			Expect(overlays.ShownFor).To(Equal("A"))
		})

		It("ignores stop from a non-owner and releases on stop from the owner", func() {
			b.StartSectionBlocking("A", blocker.SectionData{}, cancel)
			b.StartSectionBlocking("B", blocker.SectionData{}, cancel)

			Expect(b.StopSectionBlocking("B")).To(BeFalse())
			Expect(b.IsSectionBlocking()).To(BeTrue())
			Expect(overlays.IsShown()).To(BeTrue())

			Expect(b.StopSectionBlocking("A")).To(BeTrue())
			Expect(b.IsSectionBlocking()).To(BeFalse())
			Expect(overlays.IsShown()).To(BeFalse())
			Expect(timers.IsActive(blocker.ModalPollTimer)).To(BeFalse())
			Expect(source.ListenerCount(domain.EventKeyDown)).To(Equal(0))
		})

		It("stays idle when overlays cannot be shown", func() {
			overlays.ShowErr = errors.New("no document body")
			Expect(b.StartSectionBlocking("A", blocker.SectionData{}, cancel)).To(BeFalse())
			Expect(b.IsSectionBlocking()).To(BeFalse())
			Expect(timers.IsActive(blocker.ModalPollTimer)).To(BeFalse())
		})
	})

	Context("while blocking", func() {
		BeforeEach(func() {
			Expect(b.StartSectionBlocking("A", blocker.SectionData{TotalSteps: 3}, cancel)).To(BeTrue())
		})

		It("registers the modal poll with the shared timeout manager", func() {
			Expect(timers.IsActive(blocker.ModalPollTimer)).To(BeTrue())
		})

		It("toggles the fullscreen overlay with third-party modals", func() {
			modals.SetOpen(true)
			b.PollModal()
			Expect(overlays.IsFullscreenVisible()).To(BeTrue())

			modals.SetOpen(false)
			b.PollModal()
			Expect(overlays.IsFullscreenVisible()).To(BeFalse())
		})

		It("lets editor surfaces through", func() {
			Expect(b.ShouldBlockPointer(button)).To(BeTrue())
			Expect(b.ShouldBlockPointer(editor)).To(BeFalse())
		})

		It("cancels on Ctrl+C outside text fields", func() {
			copyKey(button)
			Expect(canceled).To(Equal(1))
		})

		It("cancels on Cmd+C", func() {
			source.Fire(domain.DOMEvent{Type: domain.EventKeyDown, Target: button, Key: "C", MetaKey: true})
			Expect(canceled).To(Equal(1))
		})

		It("keeps copy working inside inputs", func() {
			copyKey(input)
			Expect(canceled).To(Equal(0))

			doc.Active = input
			copyKey(button)
			Expect(canceled).To(Equal(0))
		})

		It("ignores plain C", func() {
			source.Fire(domain.DOMEvent{Type: domain.EventKeyDown, Target: button, Key: "c"})
			Expect(canceled).To(Equal(0))
		})

		It("force unblock restores idle regardless of owner", func() {
			b.ForceUnblock()
			Expect(b.IsSectionBlocking()).To(BeFalse())
			Expect(overlays.IsShown()).To(BeFalse())
			Expect(b.StartSectionBlocking("B", blocker.SectionData{}, cancel)).To(BeTrue())
		})
	})

	It("does not block pointers when idle", func() {
		Expect(b.ShouldBlockPointer(button)).To(BeFalse())
	})
})
