package sequence_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/domtest"
	"github.com/eliteGoblin/pathfinder/internal/sequence"
)

type dispatchCall struct {
	StepID string
	Click  bool
}

// recordingDispatcher records calls and fails a step a fixed number of times.
type recordingDispatcher struct {
	mu       sync.Mutex
	calls    []dispatchCall
	failures map[string]int
}

func (d *recordingDispatcher) DispatchInteractiveAction(ctx context.Context, data domain.ElementData, click bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{StepID: data.StepID, Click: click})
	if d.failures[data.StepID] > 0 {
		d.failures[data.StepID]--
		return errors.New("element not clickable")
	}
	return nil
}

// doneSteps returns step ids whose "do" action was dispatched, in order.
func (d *recordingDispatcher) doneSteps() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, c := range d.calls {
		if c.Click {
			out = append(out, c.StepID)
		}
	}
	return out
}

// scriptedRequirements fails each step's check a fixed number of times.
type scriptedRequirements struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
}

func (r *scriptedRequirements) CheckRequirementsFromData(ctx context.Context, data domain.ElementData) (domain.RequirementsResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[data.StepID]++
	if n := r.failures[data.StepID]; n != 0 {
		if n > 0 {
			r.failures[data.StepID]--
		}
		return domain.RequirementsResult{Pass: false, Error: "exists-reftarget failed"}, nil
	}
	return domain.RequirementsResult{Pass: true}, nil
}

func stepElement(id string) domain.Element {
	return domtest.El("li",
		"data-step-id="+id,
		"data-targetaction=button",
		"data-reftarget=#"+id,
		"data-requirements=exists-reftarget",
	)
}

func section(n int) []domain.Element {
	els := make([]domain.Element, n)
	for i := range els {
		els[i] = stepElement(fmt.Sprintf("step-%d", i+1))
	}
	return els
}

var _ = Describe("Manager", func() {
	var (
		dispatcher   *recordingDispatcher
		requirements *scriptedRequirements
		config       sequence.Config
		mgr          *sequence.Manager
	)

	BeforeEach(func() {
		dispatcher = &recordingDispatcher{failures: map[string]int{}}
		requirements = &scriptedRequirements{failures: map[string]int{}, calls: map[string]int{}}
		config = sequence.Config{
			MaxRetries:  3,
			RetryDelay:  time.Millisecond,
			AbortPolicy: sequence.AbortAll,
		}
	})

	JustBeforeEach(func() {
		mgr = sequence.New(sequence.AttributeExtractor{}, requirements, dispatcher, nil, config, zap.NewNop())
	})

	Describe("RunInteractiveSequence", func() {
		It("dispatches every element in order", func() {
			res, err := mgr.RunInteractiveSequence(context.Background(), section(3), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Completed).To(Equal([]string{"step-1", "step-2", "step-3"}))
			Expect(dispatcher.doneSteps()).To(Equal([]string{"step-1", "step-2", "step-3"}))
		})

		It("only shows in show mode", func() {
			_, err := mgr.RunInteractiveSequence(context.Background(), section(2), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(dispatcher.doneSteps()).To(BeEmpty())
			Expect(dispatcher.calls).To(HaveLen(2))
		})

		Context("when element 2 passes requirements on its third attempt", func() {
			BeforeEach(func() {
				requirements.failures["step-2"] = 2
			})

			It("completes all elements without aborting", func() {
				res, err := mgr.RunInteractiveSequence(context.Background(), section(3), false)
				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.doneSteps()).To(Equal([]string{"step-1", "step-2", "step-3"}))
				Expect(res.Completed).To(HaveLen(3))
				Expect(requirements.calls["step-2"]).To(Equal(3))
			})
		})

		Context("when element 2 never passes requirements", func() {
			BeforeEach(func() {
				requirements.failures["step-2"] = -1
			})

			It("aborts before element 3", func() {
				res, err := mgr.RunInteractiveSequence(context.Background(), section(3), false)
				Expect(err).To(MatchError(sequence.ErrSequenceAborted))
				Expect(err).To(MatchError(sequence.ErrRequirementsNotMet))

				var abort *sequence.AbortError
				Expect(errors.As(err, &abort)).To(BeTrue())
				Expect(abort.Index).To(Equal(1))
				Expect(abort.StepID).To(Equal("step-2"))
				Expect(abort.Attempts).To(Equal(3))
				Expect(abort.Origin).To(Equal(sequence.OriginRequirements))

				Expect(dispatcher.doneSteps()).To(Equal([]string{"step-1"}))
				Expect(requirements.calls).NotTo(HaveKey("step-3"))
				Expect(res.Completed).To(Equal([]string{"step-1"}))
			})
		})

		Context("when dispatch keeps failing", func() {
			BeforeEach(func() {
				dispatcher.failures["step-1"] = 10
			})

			It("classifies the failure as execution and never reaches later elements", func() {
				_, err := mgr.RunInteractiveSequence(context.Background(), section(3), false)
				var abort *sequence.AbortError
				Expect(errors.As(err, &abort)).To(BeTrue())
				Expect(abort.Origin).To(Equal(sequence.OriginExecution))
				Expect(requirements.calls).NotTo(HaveKey("step-2"))
			})
		})

		Context("with the skip-and-continue policy", func() {
			BeforeEach(func() {
				config.AbortPolicy = sequence.SkipAndContinue
				requirements.failures["step-2"] = -1
			})

			It("skips only the failed element", func() {
				res, err := mgr.RunInteractiveSequence(context.Background(), section(3), false)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Failed).To(Equal([]string{"step-2"}))
				Expect(dispatcher.doneSteps()).To(Equal([]string{"step-1", "step-3"}))
			})
		})

		It("skips invalid elements", func() {
			els := []domain.Element{
				stepElement("step-1"),
				domtest.El("li", "data-step-id=broken", "data-targetaction=teleport"),
				stepElement("step-3"),
			}
			res, err := mgr.RunInteractiveSequence(context.Background(), els, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Invalid).To(Equal([]int{1}))
			Expect(res.Completed).To(Equal([]string{"step-1", "step-3"}))
		})

		It("stops when the context is canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := mgr.RunInteractiveSequence(ctx, section(2), false)
			Expect(err).To(MatchError(context.Canceled))
			Expect(dispatcher.calls).To(BeEmpty())
		})
	})

	Describe("RunStepByStepSequence", func() {
		It("performs do then show for each element", func() {
			_, err := mgr.RunStepByStepSequence(context.Background(), section(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(dispatcher.calls).To(Equal([]dispatchCall{
				{StepID: "step-1", Click: true},
				{StepID: "step-1", Click: false},
				{StepID: "step-2", Click: true},
				{StepID: "step-2", Click: false},
			}))
			Expect(requirements.calls["step-1"]).To(Equal(2), "pre and post check")
		})

		Context("when the post-condition never holds", func() {
			It("retries the whole cycle and aborts", func() {
				failing := &postConditionRequirements{}
				mgr = sequence.New(sequence.AttributeExtractor{}, failing, dispatcher, nil, config, zap.NewNop())

				_, err := mgr.RunStepByStepSequence(context.Background(), section(3))
				Expect(err).To(MatchError(sequence.ErrSequenceAborted))
				Expect(dispatcher.doneSteps()).To(Equal([]string{"step-1", "step-1", "step-1"}))
			})
		})
	})
})

// postConditionRequirements passes every odd call and fails every even one,
// so the pre-check passes and the post-check fails on each attempt.
type postConditionRequirements struct {
	mu    sync.Mutex
	calls int
}

func (r *postConditionRequirements) CheckRequirementsFromData(ctx context.Context, data domain.ElementData) (domain.RequirementsResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return domain.RequirementsResult{Pass: r.calls%2 == 1}, nil
}
