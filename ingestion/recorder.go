package ingestion

import (
	"context"
	"errors"

	"github.com/fabfab/rag-workbench/domain"
)

// Recorders fans one record out to several archives. Every recorder runs;
// their errors are joined.
type Recorders []Recorder

func (r Recorders) Record(ctx context.Context, record domain.IngestionRecord) error {
	var errs []error
	for _, recorder := range r {
		if err := recorder.Record(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
