package fetch

import (
	goerrors "errors"

	"github.com/drivelane/datalayer/internal/errors"
)

// FallbackMessage is shown when a failure carries no usable message.
const FallbackMessage = "An unexpected error occurred."

// Classify converts an error from the data source into a display-safe
// message. Classified ServiceErrors pass their message through verbatim,
// plain errors surface their Error() text, and anything else maps to
// FallbackMessage.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var se *errors.ServiceError
	if goerrors.As(err, &se) {
		return se.UserMessage()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return FallbackMessage
}
