package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nidscan/nid-ocr-service/internal/auth"
	"github.com/nidscan/nid-ocr-service/internal/models"
)

const defaultURL = "http://localhost:5000/process_image"

type options struct {
	image  string
	url    string
	token  string
	name   string
	dob    string
	output string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	flag.StringVar(&opts.image, "i", "testimages/image.png", "Path to the card image")
	flag.StringVar(&opts.url, "u", defaultURL, "URL of the OCR server")
	flag.StringVar(&opts.token, "t", "", "API token (default: AUTH_TOKEN from the environment or .env)")
	flag.StringVar(&opts.name, "n", "", "Name to compare with the extracted data")
	flag.StringVar(&opts.dob, "d", "", "Date of birth to compare with the extracted data")
	flag.StringVar(&opts.output, "o", "ocr_result.json", "File the JSON response is written to (empty to skip)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Request timeout")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `nidclient - send a National ID card image to the NID OCR service

Usage: %s [options]

Options:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if opts.token == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read .env: %w", err)
		}
		opts.token = strings.TrimSpace(os.Getenv("AUTH_TOKEN"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "Sending image: %s\n", opts.image)
	fmt.Fprintf(os.Stderr, "Server URL: %s\n", opts.url)

	start := time.Now()
	raw, err := send(ctx, http.DefaultClient, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Processed in %.2f seconds\n", time.Since(start).Seconds())

	return report(os.Stdout, raw, opts.output)
}

// report saves the response to output, when set, before printing it, so a
// failed extraction still leaves its JSON on disk.
func report(w io.Writer, raw []byte, output string) error {
	if output != "" {
		if err := os.WriteFile(output, raw, 0o644); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Results saved to %s\n", output)
	}
	return printResult(w, raw)
}

// send uploads the image with the optional reference fields and returns the
// raw JSON body of a successful response.
func send(ctx context.Context, client *http.Client, opts options) ([]byte, error) {
	image, err := os.ReadFile(opts.image)
	if err != nil {
		return nil, fmt.Errorf("image file not found: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, value := range map[string]string{"Name": opts.name, "Date of Birth": opts.dob} {
		if value == "" {
			continue
		}
		if err := mw.WriteField(field, value); err != nil {
			return nil, err
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(opts.image)))
	header.Set("Content-Type", imageType(opts.image))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.url, &body)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(auth.TokenHeader, opts.token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not connect to the server at %s: %w", opts.url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func printResult(w io.Writer, raw []byte) error {
	var resp models.NIDResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("server did not return valid JSON: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("processing failed: %s", resp.Error)
	}

	fmt.Fprintln(w, "Extracted Information:")
	fmt.Fprintf(w, "  Name:          %s\n", valueOf(resp.Name))
	fmt.Fprintf(w, "  Date of Birth: %s\n", valueOf(resp.DateOfBirth))
	fmt.Fprintf(w, "  ID Number:     %s\n", valueOf(resp.IDNumber))
	for _, d := range resp.Diagnostics {
		fmt.Fprintf(w, "  ! %s: %s\n", d.Field, d.Message)
	}

	if resp.Comparison != nil {
		fmt.Fprintln(w, "Similarity Analysis:")
		out, err := json.MarshalIndent(resp.Comparison, "  ", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", out)
	}
	return nil
}

func valueOf(f *models.FieldValue) string {
	if f == nil {
		return "Not found"
	}
	return f.Value
}

func imageType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
