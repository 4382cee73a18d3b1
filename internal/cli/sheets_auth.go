package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	applog "finanzapp/internal/log"
	gsheet "finanzapp/internal/sheets/google"
)

const authorizeTimeout = 5 * time.Minute

var (
	flagAuthPort string
	flagAuthOut  string
)

var sheetsAuthCmd = &cobra.Command{
	Use:   "sheets-auth",
	Short: "Authorize the export worker against Google Sheets as a user",
	Long: "Runs the OAuth consent flow for GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE " +
		"and stores the token for the export worker. Add http://localhost:<port>/callback " +
		"to the client's authorized redirect URIs first.",
	RunE: runSheetsAuth,
}

func init() {
	sheetsAuthCmd.Flags().StringVar(&flagAuthPort, "port", "8085", "local port for the OAuth redirect")
	sheetsAuthCmd.Flags().StringVarP(&flagAuthOut, "out", "o", "", "token file (default GOOGLE_OAUTH_TOKEN_FILE or token.json)")
	rootCmd.AddCommand(sheetsAuthCmd)
}

func runSheetsAuth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg, applog.ComponentSheets)

	client, err := gsheet.ReadOAuthClient(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}
	oauthCfg, err := gsheet.OAuthConfig(client)
	if err != nil {
		return err
	}
	oauthCfg.RedirectURL = "http://localhost:" + flagAuthPort + "/callback"

	state, err := randomState()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), authorizeTimeout)
	defer cancel()

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	})
	srv := &http.Server{Addr: "localhost:" + flagAuthPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("OAuth callback server failed", applog.FieldError, err)
			cancel()
		}
	}()
	defer srv.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTitle("GOOGLE SHEETS AUTHORIZATION"))
	fmt.Fprintf(out, "\n  Open this URL to authorize:\n  %s\n\n",
		headerStyle.Render(oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline)))

	var code string
	select {
	case code = <-codeCh:
	case <-ctx.Done():
		return fmt.Errorf("authorization aborted: %w", ctx.Err())
	}

	tok, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	path := tokenPath(flagAuthOut, cfg.GoogleOAuthTokenFile)
	if err := writeToken(path, tok); err != nil {
		return err
	}
	logger.Info("OAuth token saved", "path", path)
	fmt.Fprintf(out, "  %s %s\n", mutedStyle.Render("token saved to"), valueStyle.Render(path))
	return nil
}

func tokenPath(flag, configured string) string {
	switch {
	case flag != "":
		return flag
	case configured != "":
		return configured
	default:
		return "token.json"
	}
}

func writeToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
