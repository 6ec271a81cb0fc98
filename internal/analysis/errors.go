package analysis

import (
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrQuotaExceeded means every credential hit its quota retry budget.
	ErrQuotaExceeded = eris.New("analysis: quota exceeded on all credentials")
	// ErrSchemaViolation means the model kept returning non-conforming output.
	ErrSchemaViolation = eris.New("analysis: response does not match schema")
	// ErrConfigurationDisabled means the model feature flag is off.
	ErrConfigurationDisabled = eris.New("analysis: model disabled by configuration")
	// ErrNoCredentials means the credential pool is empty.
	ErrNoCredentials = eris.New("analysis: no credentials configured")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = eris.New("analysis: invalid request")
)

// SchemaViolationError lists what was wrong with one model response.
type SchemaViolationError struct {
	Problems []string
}

func (e *SchemaViolationError) Error() string {
	return "analysis: schema violation: " + strings.Join(e.Problems, "; ")
}

// Is makes errors.Is(err, ErrSchemaViolation) hold.
func (e *SchemaViolationError) Is(target error) bool {
	return target == ErrSchemaViolation
}
