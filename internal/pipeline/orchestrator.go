// Package pipeline sequences one card request from admission to response.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nidscan/nid-ocr-service/internal/admission"
	"github.com/nidscan/nid-ocr-service/internal/db"
	apperrors "github.com/nidscan/nid-ocr-service/internal/errors"
	"github.com/nidscan/nid-ocr-service/internal/extract"
	"github.com/nidscan/nid-ocr-service/internal/logging"
	"github.com/nidscan/nid-ocr-service/internal/models"
	"github.com/nidscan/nid-ocr-service/internal/ocr"
	"github.com/nidscan/nid-ocr-service/internal/services"
	"github.com/nidscan/nid-ocr-service/internal/storage"
)

// Audit outcomes
const (
	OutcomeAdmitted      = "admitted"
	OutcomeRejected      = "rejected"
	OutcomeStorageFailed = "storage_failed"
	OutcomeEngineFailure = "engine_failure"
)

// auditTimeout bounds the audit write so a slow database never stalls a response
const auditTimeout = 3 * time.Second

// AuditRecorder stores request outcomes. *db.AuditLog satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, rec db.AuditRecord) error
}

// Request is one card submission
type Request struct {
	RequestID  string
	Token      string
	ClientAddr string
	Upload     admission.Upload
	References map[extract.Kind]string
}

// Deps are the collaborators of an Orchestrator. Audit and Logger are optional.
type Deps struct {
	Admission    *admission.Controller
	Scratch      *storage.Scratch
	Preprocessor *ocr.Preprocessor
	Engine       ocr.Engine
	Normalizer   *extract.Normalizer
	Extractor    *extract.Extractor
	Comparator   *services.Comparator
	Audit        AuditRecorder
	Logger       *logging.Logger
}

// Orchestrator runs the request pipeline. Requests share nothing except the
// rate-limit ledger inside admission.
type Orchestrator struct {
	Deps
}

// New creates an orchestrator
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Preprocessor == nil {
		deps.Preprocessor = ocr.NewPreprocessor()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = extract.NewNormalizer(0)
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewExtractor(extract.DefaultConfig())
	}
	if deps.Comparator == nil {
		deps.Comparator = services.NewComparator(0)
	}
	return &Orchestrator{Deps: deps}
}

// EngineName reports the configured OCR engine
func (o *Orchestrator) EngineName() string {
	return o.Engine.Name()
}

// Process admits, recognizes and extracts one card. Admission and storage
// failures are returned as *errors.Error with no response. Engine failures
// produce a response with Success false. Per-field extraction failures are
// listed in Diagnostics.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*models.NIDResponse, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	log := o.Logger.With("request_id", req.RequestID)
	rec := db.AuditRecord{RequestID: req.RequestID, Engine: o.Engine.Name()}

	decision, err := o.Admission.Admit(ctx, admission.Request{
		Token:      req.Token,
		ClientAddr: req.ClientAddr,
		Upload:     req.Upload,
	})
	if err != nil {
		log.Warn("Request rejected", "code", apperrors.CodeOf(err), "trail", trail(decision))
		if decision != nil {
			rec.ClientID = decision.ClientID
		}
		rec.Outcome = OutcomeRejected
		rec.ErrorCode = string(apperrors.CodeOf(err))
		o.audit(ctx, log, rec, start)
		return nil, err
	}
	rec.ClientID = decision.ClientID
	log.Info("Request admitted", "client", decision.ClientID, "media_type", decision.MediaType, "bytes", len(decision.Data))

	file, err := o.Scratch.Acquire(decision.Data)
	if err != nil {
		log.Error("Failed to stage upload", "error", err)
		rec.Outcome = OutcomeStorageFailed
		rec.ErrorCode = string(apperrors.CodeOf(err))
		o.audit(ctx, log, rec, start)
		return nil, err
	}
	defer file.Release()

	resp := &models.NIDResponse{RequestID: req.RequestID, Engine: o.Engine.Name()}

	ocrStart := time.Now()
	transcript, err := o.recognize(ctx, file.Path())
	rec.OCRDuration = time.Since(ocrStart)
	resp.OCRDuration = seconds(rec.OCRDuration)
	if err != nil {
		log.Error("OCR failed", "error", err)
		resp.Error = engineMessage(err)
		// Supplied references still get a per-field status
		resp.Comparison = o.Comparator.CompareAll(extract.Result{}, req.References)
		resp.TotalDuration = seconds(time.Since(start))
		rec.Outcome = OutcomeEngineFailure
		rec.ErrorCode = string(apperrors.ErrorEngineFailure)
		o.audit(ctx, log, rec, start)
		return resp, nil
	}

	lines := o.Normalizer.Lines(transcript)
	result := o.Extractor.Extract(lines)

	resp.Success = true
	resp.Name = fieldValue(result.Name)
	resp.DateOfBirth = fieldValue(result.DateOfBirth)
	resp.IDNumber = fieldValue(result.IDNumber)
	resp.RawText = transcript.Text()
	resp.Diagnostics = diagnostics(result)
	resp.Comparison = o.Comparator.CompareAll(result, req.References)
	resp.TotalDuration = seconds(time.Since(start))

	rec.Outcome = OutcomeAdmitted
	rec.FieldsFound = len(extract.Kinds) - len(result.Errors)
	o.audit(ctx, log, rec, start)

	log.Info("Processing complete",
		"fields_found", rec.FieldsFound,
		"comparison", resp.Comparison.Status,
		"ocr_duration", resp.OCRDuration,
		"total_duration", resp.TotalDuration)
	return resp, nil
}

// recognize decodes the staged image and runs the engine. Any failure,
// including a panic inside the engine, becomes an ENGINE_FAILURE error.
func (o *Orchestrator) recognize(ctx context.Context, path string) (tr ocr.Transcript, err error) {
	name := o.Engine.Name()
	defer func() {
		if r := recover(); r != nil {
			tr = ocr.Transcript{}
			err = apperrors.NewEngineFailureError(name, "OCR processing failed", fmt.Errorf("engine panic: %v", r))
		}
	}()

	img, err := o.Preprocessor.PreprocessImage(path)
	if err != nil {
		return ocr.Transcript{}, apperrors.NewEngineFailureError(name, "Invalid image provided", err)
	}
	tr, err = o.Engine.Recognize(ctx, img)
	if err != nil {
		return ocr.Transcript{}, apperrors.NewEngineFailureError(name, "OCR processing failed", err)
	}
	if tr.IsEmpty() {
		return ocr.Transcript{}, apperrors.NewEngineFailureError(name, "No text detected in image", nil)
	}
	return tr, nil
}

func (o *Orchestrator) audit(ctx context.Context, log *logging.Logger, rec db.AuditRecord, start time.Time) {
	if o.Audit == nil {
		return
	}
	rec.TotalDuration = time.Since(start)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := o.Audit.Record(ctx, rec); err != nil {
		log.Warn("Failed to write audit record", "error", err)
	}
}

func fieldValue(f *extract.Field) *models.FieldValue {
	if f == nil {
		return nil
	}
	return &models.FieldValue{
		Value:      f.Value,
		Strategy:   f.Strategy,
		Confidence: f.Confidence,
		Line:       f.Line,
	}
}

func diagnostics(res extract.Result) []models.Diagnostic {
	var out []models.Diagnostic
	for _, kind := range extract.Kinds {
		err, ok := res.Errors[kind]
		if !ok {
			continue
		}
		d := models.Diagnostic{Field: string(kind), Code: string(apperrors.CodeOf(err)), Message: err.Error()}
		if e, ok := apperrors.As(err); ok {
			d.Message = e.Message
		}
		out = append(out, d)
	}
	return out
}

func engineMessage(err error) string {
	if e, ok := apperrors.As(err); ok {
		return e.Message
	}
	return "OCR processing failed"
}

func trail(d *admission.Decision) string {
	if d == nil {
		return ""
	}
	parts := make([]string, len(d.Trail))
	for i, s := range d.Trail {
		parts[i] = string(s)
	}
	return strings.Join(parts, ">")
}

func seconds(d time.Duration) float64 {
	return decimal.NewFromFloat(d.Seconds()).Round(3).InexactFloat64()
}
