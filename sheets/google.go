package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// googleValues adapts the generated Sheets client to ValuesService.
type googleValues struct {
	svc *gsheets.SpreadsheetsValuesService
}

// NewGoogleValues builds a ValuesService from a credentials file (service
// account or authorized-user JSON). Obtaining that file is left to the operator.
func NewGoogleValues(ctx context.Context, credentialsFile string) (ValuesService, error) {
	srv, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errAuth, err)
	}
	return &googleValues{svc: srv.Spreadsheets.Values}, nil
}

func (g *googleValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := g.svc.Clear(spreadsheetID, rng, &gsheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (g *googleValues) Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	_, err := g.svc.Update(spreadsheetID, rng, &gsheets.ValueRange{
		MajorDimension: "ROWS",
		Range:          rng,
		Values:         rows,
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func isAuthError(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden
	}
	var rerr *oauth2.RetrieveError
	return errors.As(err, &rerr)
}
