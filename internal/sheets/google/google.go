package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finanzapp/internal/core"
	ports "finanzapp/internal/sheets"
)

const (
	defaultSheetName = "Ledger"
	// entry id, date, month, purpose, amount, interval, rating, score
	rowColumns = "A:H"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Ledger"); each entry lands in the
	// sheet of its charge year.
	sheetBase string
}

var _ ports.LedgerMirror = (*Client)(nil)

type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string

	// OAuth user credentials. When a client is set they replace the
	// service account; the token comes from `finanzapp sheets-auth`.
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

func (o Options) usesOAuth() bool {
	return strings.TrimSpace(o.OAuthClientJSON) != "" || strings.TrimSpace(o.OAuthClientFile) != ""
}

// New creates a Sheets client. It authenticates as a user when OAuth
// client credentials are set and with a service account otherwise;
// service account credentials come from opts or, when both are empty,
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = defaultSheetName
	}

	auth, err := authOption(ctx, opts)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, auth, goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID, "sheet", base)

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: base}, nil
}

func authOption(ctx context.Context, opts Options) (goption.ClientOption, error) {
	if opts.usesOAuth() {
		client, err := readSecret(opts.OAuthClientJSON, opts.OAuthClientFile, "oauth client")
		if err != nil {
			return nil, err
		}
		cfg, err := OAuthConfig(client)
		if err != nil {
			return nil, err
		}
		tok, err := loadToken(opts)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth user credentials")
		return goption.WithHTTPClient(cfg.Client(ctx, tok)), nil
	}
	creds, err := resolveCredentials(ctx, opts)
	if err != nil {
		return nil, err
	}
	return goption.WithCredentialsJSON(creds), nil
}

// OAuthConfig parses a downloaded OAuth client JSON scoped for spreadsheets.
func OAuthConfig(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := oauthgoogle.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// ReadOAuthClient returns the OAuth client JSON from inline or file.
func ReadOAuthClient(inline, file string) ([]byte, error) {
	return readSecret(inline, file, "oauth client")
}

func loadToken(opts Options) (*oauth2.Token, error) {
	if strings.TrimSpace(opts.OAuthTokenJSON) == "" && strings.TrimSpace(opts.OAuthTokenFile) == "" {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	b, err := readSecret(opts.OAuthTokenJSON, opts.OAuthTokenFile, "oauth token")
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return &tok, nil
}

// readSecret prefers inline over file.
func readSecret(inline, file, what string) ([]byte, error) {
	if v := strings.TrimSpace(inline); v != "" {
		return []byte(v), nil
	}
	if f := strings.TrimSpace(file); f != "" {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", what, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("missing %s", what)
}

func resolveCredentials(ctx context.Context, opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.CredentialsJSON)
	file := strings.TrimSpace(opts.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline JSON credentials", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Append writes one row for the entry into the sheet of its charge year.
func (c *Client) Append(ctx context.Context, e core.LedgerEntry) (string, error) {
	if strings.TrimSpace(e.ID) == "" {
		return "", errors.New("entry without id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := yearPrefixedName(c.sheetBase, e.ChargedAt.Year())
	rng := fmt.Sprintf("%s!%s", sheet, rowColumns)
	vr := &gsheet.ValueRange{Values: [][]any{entryRow(e)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// DeleteEntry clears the row holding entryID. Only the current and the
// previous year's sheets are searched.
func (c *Client) DeleteEntry(ctx context.Context, entryID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	year := time.Now().Year()
	for _, y := range []int{year, year - 1} {
		sheet := yearPrefixedName(c.sheetBase, y)
		rng := fmt.Sprintf("%s!A:A", sheet)
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			slog.WarnContext(ctx, "Cannot read mirror sheet", "sheet", sheet, "error", err)
			continue
		}
		row := findEntryRow(resp.Values, entryID)
		if row < 0 {
			continue
		}
		target := fmt.Sprintf("%s!A%d:H%d", sheet, row, row)
		if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, target, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
			return fmt.Errorf("clear %s: %w", target, err)
		}
		slog.InfoContext(ctx, "Cleared mirrored entry", "entry_id", entryID, "range", target)
		return nil
	}
	slog.InfoContext(ctx, "Entry not present in mirror", "entry_id", entryID)
	return nil
}

func entryRow(e core.LedgerEntry) []any {
	score := ""
	if e.Rating.Score != nil {
		score = strconv.FormatFloat(*e.Rating.Score, 'f', 2, 64)
	}
	return []any{
		e.ID,
		e.ChargedAt.Format("02.01.2006"),
		e.MonthKey,
		e.Purpose,
		e.Amount.Euros(),
		e.IntervalSnapshot,
		string(e.Rating.Status),
		score,
	}
}

// findEntryRow returns the 1-based row whose first column equals id, or -1.
func findEntryRow(values [][]any, id string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return -1
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
