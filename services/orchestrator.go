package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// PanelStatus is the tagged per-panel lifecycle. "Any work happening" is
// derived from these, never tracked separately.
type PanelStatus string

const (
	PanelIdle             PanelStatus = "idle"
	PanelInFlight         PanelStatus = "in_flight"
	PanelFailedPrimary    PanelStatus = "failed_primary"
	PanelInFlightFallback PanelStatus = "in_flight_fallback"
	PanelSucceeded        PanelStatus = "succeeded"
	PanelFailed           PanelStatus = "failed"
)

// PanelState is one panel's slot in a batch.
type PanelState struct {
	Status      PanelStatus
	ImageBase64 string
	ViaFallback bool
	FailReason  string
	// moderation marks whether the terminal failure was a policy refusal,
	// which drives the aggregate batch message.
	moderation bool
}

// InFlight reports whether the panel is in either in-flight variant.
func (s PanelState) InFlight() bool {
	return s.Status == PanelInFlight || s.Status == PanelInFlightFallback
}

// PanelHistoryStore records which panels have ever been successfully
// generated under a lock key. It is the regenerate cost-safety gate.
type PanelHistoryStore interface {
	HasPanel(ctx context.Context, lockKey string, panel int) (bool, error)
	AppendPanels(ctx context.Context, modelID uint, lockKey string, panels []int) error
}

type BatchMode string

const (
	ModeGenerate   BatchMode = "generate"
	ModeRegenerate BatchMode = "regenerate"
)

// BatchInput is one generation context plus the panels requested from it.
type BatchInput struct {
	ModelID   uint
	Gender    string
	ModelRefs []string
	ItemType  string
	ItemRefs  []string

	// Optional fetchable URLs handed to the provider in place of the raw
	// refs. Lock identity always stays on ModelRefs/ItemRefs, so presigned
	// URLs here cannot perturb the lock key.
	ModelRefURLs []string
	ItemRefURLs  []string

	Panels []int
	Mode   BatchMode

	StyleNotes            string
	RegenNotes            string
	PoseSafetySuggestions map[string]string
}

// BatchOutcome holds per-panel terminal states after all panels settled.
type BatchOutcome struct {
	LockKey   string
	Panels    map[int]PanelState
	Succeeded []int
}

// ValidationError aborts a batch before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// CostSafetyError is the regenerate-gate abort: a panel was requested for
// regeneration that was never generated under the current lock key.
type CostSafetyError struct {
	Panel int
}

func (e *CostSafetyError) Error() string {
	return fmt.Sprintf("panel %d was never generated for this model/item/reference combination; regenerate is only allowed for previously generated panels", e.Panel)
}

// ModerationBlockedMessage is the aggregate user-facing message used only
// when every failed panel in a batch was refused on policy grounds.
const ModerationBlockedMessage = "Generation was blocked by content moderation for the requested panels. Adjust the item type, style notes or references and try again."

// Orchestrator runs panel generation batches against the generation
// collaborator and the panel history store.
type Orchestrator struct {
	Provider GenerationProvider
	History  PanelHistoryStore

	// BlockHighSensitivity gates true intimates before any generation call.
	// Swim/medium items pass regardless.
	BlockHighSensitivity bool

	// Optional observer for state transitions, used by the worker to keep
	// persisted batch rows current while panels are in flight.
	OnState func(panel int, state PanelState)
}

// isPanelBlockedForItem is the neutralized legacy rule that excluded panel 3
// for female dress items. Deliberately always false; kept so the call site
// documents where a panel-blocking policy would plug in.
func isPanelBlockedForItem(gender string, itemType string, panel int) bool {
	_ = gender
	_ = itemType
	_ = panel
	return false
}

// RunBatch validates preconditions, enforces the regenerate gate, fans out
// all requested panels concurrently and collects their settled outcomes.
// Partial success is allowed: succeeded panels are recorded in history even
// when siblings fail, and the returned error (if any) aggregates only the
// failed panels.
func (o *Orchestrator) RunBatch(ctx context.Context, in BatchInput) (*BatchOutcome, error) {
	if len(in.ModelRefs) < 3 {
		return nil, &ValidationError{Message: fmt.Sprintf("model needs at least 3 reference images, got %d", len(in.ModelRefs))}
	}
	if strings.TrimSpace(in.ItemType) == "" {
		return nil, &ValidationError{Message: "item type is required before generating panels"}
	}
	if len(in.ItemRefs) == 0 {
		return nil, &ValidationError{Message: "at least one item reference image is required"}
	}
	panels := dedupeSortedPanels(in.Panels)
	if len(panels) == 0 {
		return nil, &ValidationError{Message: "no panels requested"}
	}
	for _, p := range panels {
		if _, err := PanelPosePair(in.Gender, p); err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
	}
	if o.BlockHighSensitivity && GetSensitivityTier(in.ItemType) == SensitivityHigh {
		return nil, &ValidationError{Message: fmt.Sprintf("item type %q is in a blocked sensitivity category", in.ItemType)}
	}

	lockKey := BuildPanelLockKey(in.ModelID, in.ItemType, in.ItemRefs)

	if in.Mode == ModeRegenerate {
		for _, p := range panels {
			seen, err := o.History.HasPanel(ctx, lockKey, p)
			if err != nil {
				return nil, fmt.Errorf("failed to read panel history: %v", err)
			}
			if !seen {
				return nil, &CostSafetyError{Panel: p}
			}
		}
	}

	outcome := &BatchOutcome{
		LockKey: lockKey,
		Panels:  make(map[int]PanelState, len(panels)),
	}

	var mu sync.Mutex
	setState := func(panel int, state PanelState) {
		mu.Lock()
		outcome.Panels[panel] = state
		mu.Unlock()
		if o.OnState != nil {
			o.OnState(panel, state)
		}
	}

	var wg sync.WaitGroup
	for _, panel := range panels {
		if isPanelBlockedForItem(in.Gender, in.ItemType, panel) {
			continue
		}
		wg.Add(1)
		go func(panel int) {
			defer wg.Done()
			o.generateOnePanel(ctx, in, panel, setState)
		}(panel)
	}
	wg.Wait()

	var failMessages []string
	allModeration := true
	for _, panel := range panels {
		state := outcome.Panels[panel]
		if state.Status == PanelSucceeded {
			outcome.Succeeded = append(outcome.Succeeded, panel)
			continue
		}
		failMessages = appendDistinct(failMessages, state.FailReason)
		if !state.moderation {
			allModeration = false
		}
	}
	sort.Ints(outcome.Succeeded)

	if len(outcome.Succeeded) > 0 {
		if err := o.History.AppendPanels(ctx, in.ModelID, lockKey, outcome.Succeeded); err != nil {
			// history is a cost gate, not a correctness gate; keep the images
			fmt.Printf("[Batch %s] Failed to append panel history: %v\n", lockKey, err)
		}
	}

	if len(failMessages) > 0 {
		if allModeration {
			return outcome, fmt.Errorf("%s", ModerationBlockedMessage)
		}
		return outcome, fmt.Errorf("%s", strings.Join(failMessages, "; "))
	}
	return outcome, nil
}

// generateOnePanel walks one panel through the state machine: a primary
// attempt with its own pose pair, then on a moderation refusal for panel 3/4
// exactly one fallback attempt with the substitute panel's pose pair and lock
// rules. The fallback result lands in the ORIGINAL panel's slot.
func (o *Orchestrator) generateOnePanel(ctx context.Context, in BatchInput, panel int, setState func(int, PanelState)) {
	setState(panel, PanelState{Status: PanelInFlight})

	poses, err := PanelPosePair(in.Gender, panel)
	if err != nil {
		setState(panel, PanelState{Status: PanelFailed, FailReason: err.Error()})
		return
	}

	image, err := o.callProvider(ctx, in, panel, panel, poses, false)
	if err == nil {
		setState(panel, PanelState{Status: PanelSucceeded, ImageBase64: image})
		return
	}

	fbPanel, ok := FallbackPanel(panel)
	if !IsModerationRefusal(err) || !ok {
		setState(panel, PanelState{Status: PanelFailed, FailReason: err.Error(), moderation: IsModerationRefusal(err)})
		return
	}

	fmt.Printf("[Panel %d] Moderation refusal, retrying with panel %d pose pair: %v\n", panel, fbPanel, err)
	setState(panel, PanelState{Status: PanelFailedPrimary, FailReason: err.Error(), moderation: true})
	setState(panel, PanelState{Status: PanelInFlightFallback})

	fbPoses, fbErr := PanelPosePair(in.Gender, fbPanel)
	if fbErr != nil {
		setState(panel, PanelState{Status: PanelFailed, FailReason: fbErr.Error(), moderation: true})
		return
	}
	image, fbErr = o.callProvider(ctx, in, panel, fbPanel, fbPoses, true)
	if fbErr != nil {
		setState(panel, PanelState{Status: PanelFailed, FailReason: fbErr.Error(), moderation: IsModerationRefusal(fbErr)})
		return
	}
	setState(panel, PanelState{Status: PanelSucceeded, ImageBase64: image, ViaFallback: true})
}

// callProvider builds the prompt and issues one generation call. promptPanel
// carries the lock rules and pose pair in use; on a fallback attempt it is
// the substitute panel while slotPanel stays the original output slot the
// backend logs against.
func (o *Orchestrator) callProvider(ctx context.Context, in BatchInput, slotPanel, promptPanel int, poses PosePair, viaFallback bool) (string, error) {
	prompt := BuildMasterPanelPrompt(PanelPromptArgs{
		Gender:                  in.Gender,
		Panel:                   promptPanel,
		Poses:                   poses,
		ItemType:                in.ItemType,
		StyleNotes:              in.StyleNotes,
		RegenNotes:              in.RegenNotes,
		PoseSafetySuggestions:   in.PoseSafetySuggestions,
		ForceActivePoseOverride: viaFallback,
	})
	modelRefs := in.ModelRefs
	if len(in.ModelRefURLs) > 0 {
		modelRefs = in.ModelRefURLs
	}
	itemRefs := in.ItemRefs
	if len(in.ItemRefURLs) > 0 {
		itemRefs = in.ItemRefURLs
	}
	return o.Provider.GeneratePanel(ctx, GenerationRequest{
		Prompt:    prompt,
		Size:      PanelRequestSize,
		ModelRefs: modelRefs,
		ItemRefs:  itemRefs,
		PanelQa: PanelQA{
			Panel:       slotPanel,
			Gender:      normalizeGender(in.Gender),
			ItemType:    in.ItemType,
			PoseLeft:    poses.Left,
			PoseRight:   poses.Right,
			ViaFallback: viaFallback,
		},
	})
}

func dedupeSortedPanels(panels []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, p := range panels {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func appendDistinct(list []string, msg string) []string {
	if msg == "" {
		return list
	}
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}
