package cli

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// printResult writes the structured result envelope for one command.
// A failure is printed like a success and then reported as errReported so
// the process exits non-zero without printing the error twice.
func (o *rootOptions) printResult(data any, err error) error {
	res := models.OK(data)
	if err != nil {
		if o.logger != nil && apperrors.Code(err) == apperrors.CodeInternal {
			o.logger.Error("Command failed", zap.Error(err))
		}
		res = models.Fail(err)
	}

	var body []byte
	var marshalErr error
	if o.pretty {
		body, marshalErr = json.MarshalIndent(res, "", "  ")
	} else {
		body, marshalErr = json.Marshal(res)
	}
	if marshalErr != nil {
		return fmt.Errorf("failed to encode result: %w", marshalErr)
	}
	if _, werr := fmt.Fprintln(o.out, string(body)); werr != nil {
		return werr
	}

	if err != nil {
		return errReported
	}
	return nil
}
