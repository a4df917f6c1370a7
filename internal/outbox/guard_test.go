package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdmissionGuardWindow(t *testing.T) {
	g := newAdmissionGuard(5 * time.Second)
	base := time.Date(2026, 2, 6, 10, 0, 0, 0, time.UTC)

	assert.True(t, g.admit(21, base), "first attempt should pass")
	assert.False(t, g.admit(21, base.Add(1*time.Second)), "repeat within window should be rejected")
	assert.False(t, g.admit(21, base.Add(4999*time.Millisecond)), "repeat just inside window should be rejected")
	assert.True(t, g.admit(21, base.Add(5*time.Second)), "repeat at window boundary should pass")
}

func TestAdmissionGuardPerBib(t *testing.T) {
	g := newAdmissionGuard(5 * time.Second)
	base := time.Date(2026, 2, 6, 10, 0, 0, 0, time.UTC)

	assert.True(t, g.admit(21, base))
	assert.True(t, g.admit(22, base), "locks are per bib")
}

func TestAdmissionGuardDefaultWindow(t *testing.T) {
	g := newAdmissionGuard(0)
	assert.Equal(t, DefaultLockWindow, g.window)
}
