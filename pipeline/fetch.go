package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CustomTransport fügt jeder Anfrage einen User-Agent-Header hinzu.
// Manche Export-Hosts lehnen Requests ohne Browser-UA ab.
type CustomTransport struct {
	Transport http.RoundTripper
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	return t.Transport.RoundTrip(req)
}

// FetchFailure signalisiert, dass der CSV-Export gar nicht abgerufen werden
// konnte. Das ist fatal für den Lauf und zählt nicht zu den bad_rows.
type FetchFailure struct {
	URL string
	Err error
}

func (f *FetchFailure) Error() string {
	return fmt.Sprintf("fetching csv export from %s: %v", f.URL, f.Err)
}

func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// Fetcher ruft den konfigurierten CSV-Export ab. Der Timeout kommt als
// expliziter Wert vom Entry-Point, kein Retry: ein fehlgeschlagener Abruf
// beendet den Lauf sofort.
type Fetcher struct {
	client *http.Client
}

// NewFetcher erstellt einen Fetcher mit dem gegebenen Timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &CustomTransport{
				Transport: http.DefaultTransport,
			},
		},
	}
}

// FetchCSV lädt den rohen CSV-Export von der gegebenen URL.
func (f *Fetcher) FetchCSV(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchFailure{URL: url, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchFailure{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchFailure{URL: url, Err: fmt.Errorf("bad status: %s", resp.Status)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchFailure{URL: url, Err: err}
	}
	return data, nil
}
