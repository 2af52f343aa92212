package assistant

import "errors"

// Failure kinds of the pipeline. Each is returned wrapped with context; use
// errors.Is to test for a kind. Nothing is retried.
var (
	ErrClassificationParse  = errors.New("CLASSIFICATION_PARSE_ERROR")
	ErrExtraction           = errors.New("EXTRACTION_ERROR")
	ErrQuerySynthesis       = errors.New("QUERY_SYNTHESIS_ERROR")
	ErrUnsafeQuery          = errors.New("UNSAFE_QUERY")
	ErrQueryExecution       = errors.New("QUERY_EXECUTION_ERROR")
	ErrInvalidVisualization = errors.New("INVALID_VISUALIZATION_TYPE")
	ErrRendering            = errors.New("RENDERING_ERROR")
	ErrPersistence          = errors.New("PERSISTENCE_ERROR")
	ErrOracle               = errors.New("ORACLE_ERROR")
)

var errorKinds = []error{
	ErrClassificationParse,
	ErrExtraction,
	ErrQuerySynthesis,
	ErrUnsafeQuery,
	ErrQueryExecution,
	ErrInvalidVisualization,
	ErrRendering,
	ErrPersistence,
	ErrOracle,
}

// ErrorKind returns the label of the first kind err matches, for logs and
// metrics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "UNKNOWN_ERROR"
}
