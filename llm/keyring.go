package llm

import (
	"errors"
	"sync"
)

// ErrNoCredentials is returned when a KeyRing has no keys configured for
// any model.
var ErrNoCredentials = errors.New("llm: no credentials configured")

// Credential is an opaque API key plus the metadata needed to use it.
type Credential struct {
	Key   string
	Label string
}

// modelKeys holds the ordered credentials for one model.
type modelKeys struct {
	model string
	keys  []Credential
}

// KeyRing iterates keys within a model before rotating to the next model:
// Next() walks the current model's key list first, and only advances to
// the next model once that list is exhausted or RotateOnRateLimit forces
// an advance.
type KeyRing struct {
	mu       sync.Mutex
	models   []modelKeys
	modelIdx int
	keyIdx   int
}

// NewKeyRing builds a KeyRing from an ordered list of (model, keys) pairs.
// Order determines rotation priority: models earlier in the list are
// preferred.
func NewKeyRing(models []string, keysByModel map[string][]Credential) *KeyRing {
	kr := &KeyRing{}
	for _, m := range models {
		kr.models = append(kr.models, modelKeys{model: m, keys: keysByModel[m]})
	}
	return kr
}

// Next returns the current (model, key) pair without advancing rotation
// state. Call Advance or RotateOnRateLimit to move to the next credential.
func (kr *KeyRing) Next() (model string, key Credential, err error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	return kr.currentLocked()
}

func (kr *KeyRing) currentLocked() (string, Credential, error) {
	for i := 0; i < len(kr.models); i++ {
		idx := (kr.modelIdx + i) % len(kr.models)
		mk := kr.models[idx]
		if len(mk.keys) == 0 {
			continue
		}
		keyIdx := kr.keyIdx
		if i != 0 {
			keyIdx = 0
		}
		if keyIdx >= len(mk.keys) {
			continue
		}
		return mk.model, mk.keys[keyIdx], nil
	}
	return "", Credential{}, ErrNoCredentials
}

// Advance moves to the next key within the current model, rotating to the
// next model once the current model's keys are exhausted.
func (kr *KeyRing) Advance() {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	kr.advanceLocked()
}

func (kr *KeyRing) advanceLocked() {
	if len(kr.models) == 0 {
		return
	}
	mk := kr.models[kr.modelIdx]
	kr.keyIdx++
	if kr.keyIdx >= len(mk.keys) {
		kr.keyIdx = 0
		kr.modelIdx = (kr.modelIdx + 1) % len(kr.models)
	}
}

// RotateOnRateLimit advances the ring immediately, bypassing remaining keys
// in the current model only if the model itself is exhausted; classified
// rate-limit errors always warrant an immediate key rotation attempt.
func (kr *KeyRing) RotateOnRateLimit() {
	kr.Advance()
}
