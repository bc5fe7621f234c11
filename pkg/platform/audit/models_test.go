package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPatientRef(t *testing.T) {
	a := HashPatientRef("PAT-001")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashPatientRef("PAT-001"))
	assert.NotEqual(t, a, HashPatientRef("PAT-002"))
	assert.NotContains(t, a, "PAT")
	assert.Empty(t, HashPatientRef(""))
}

func TestEventCategory(t *testing.T) {
	assert.Equal(t, CategoryCompliance, EventClaimDecided.Category())
	assert.Equal(t, CategorySecurity, EventBudgetInconsistency.Category())
	assert.Equal(t, CategoryOperations, AuditEvent("something_new").Category())
}
