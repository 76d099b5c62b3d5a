package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"vaultcore/internal/apperr"
	"vaultcore/internal/config"
	"vaultcore/internal/lock"
	"vaultcore/internal/model"
	"vaultcore/internal/quota"
	"vaultcore/internal/repository"
)

// ManualSortFolder is where low-confidence and manually-sorted documents go.
const ManualSortFolder = "Needs Review"

// Recovery actions for documents whose recognition failed.
const (
	ActionRetry      = "retry"
	ActionManualSort = "manual_sort"
	ActionSkip       = "skip"
)

// Outcome reports what the pipeline did with one document.
type Outcome struct {
	Status string `json:"status"`
	// Category holds the detected class when recognition ran.
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	// UnitsDebited is the processing unit cost charged to the tenant.
	UnitsDebited int64 `json:"units_debited"`
	// CreatedFolders lists folders auto-created for placement, so callers
	// can surface them to the user.
	CreatedFolders []string `json:"created_folders,omitempty"`
	// ManualSort is true when the document landed in the manual-sort
	// folder because confidence fell under the threshold.
	ManualSort bool `json:"manual_sort"`
}

// TopUpTrigger is consulted after each debit so automatic top-up can
// replenish a balance that fell under the tenant's threshold.
type TopUpTrigger interface {
	AutoTopUp(ctx context.Context, tenantID string) (*model.LedgerEntry, error)
}

// Classifier runs the recognition pipeline: sampling gate, processing quota
// gate, recognition, unit debit, and folder placement.
type Classifier struct {
	cfg        config.PipelineConfig
	recognizer Recognizer
	tenants    repository.TenantRepository
	docs       repository.DocumentRepository
	folders    repository.FolderRepository
	ledger     repository.LedgerRepository
	topups     TopUpTrigger
	locks      *lock.Keyed
	now        func() time.Time
}

// NewClassifier creates a Classifier. The recognizer is wrapped with retry
// according to the pipeline config.
func NewClassifier(
	cfg config.PipelineConfig,
	recognizer Recognizer,
	tenants repository.TenantRepository,
	docs repository.DocumentRepository,
	folders repository.FolderRepository,
	ledger repository.LedgerRepository,
) *Classifier {
	return &Classifier{
		cfg:        cfg,
		recognizer: NewRetryingRecognizer(recognizer, cfg.MaxRetries, time.Duration(cfg.RetryBackoffMS)*time.Millisecond),
		tenants:    tenants,
		docs:       docs,
		folders:    folders,
		ledger:     ledger,
		locks:      lock.NewKeyed(),
		now:        time.Now,
	}
}

// WithTopUp wires the auto top-up trigger consulted after each debit.
func (c *Classifier) WithTopUp(t TopUpTrigger) *Classifier {
	c.topups = t
	return c
}

// WithClock overrides the clock, for tests.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// Sampled decides whether a document enters recognition, deterministically
// from its ID so re-evaluating the gate never flips the decision.
func Sampled(documentID string, percent int) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	h := fnv.New32a()
	h.Write([]byte(documentID))
	return int(h.Sum32()%100) < percent
}

// Process runs the pipeline for a confirmed document. Documents outside the
// sampling gate are deferred without a recognizer call or unit debit. A
// document that already finished recognition is rejected; use Reprocess for
// an explicit re-run.
func (c *Classifier) Process(ctx context.Context, tenantID, documentID string) (*Outcome, error) {
	return c.process(ctx, tenantID, documentID, false)
}

// Reprocess re-runs recognition for a document regardless of its current
// status, bypassing the sampling gate. The tenant is debited again.
func (c *Classifier) Reprocess(ctx context.Context, tenantID, documentID string) (*Outcome, error) {
	return c.process(ctx, tenantID, documentID, true)
}

func (c *Classifier) process(ctx context.Context, tenantID, documentID string, force bool) (*Outcome, error) {
	doc, err := c.docs.FindByID(ctx, tenantID, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "document not found")
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "load document", err)
	}
	if doc.UploadStatus != model.UploadConfirmed {
		return nil, apperr.New(apperr.CodeInvalidArgument, "document upload is not confirmed")
	}
	if !force && doc.OCRStatus == model.OCRDone {
		return nil, apperr.New(apperr.CodeConflict, "document is already recognized")
	}

	if !force && !Sampled(doc.ID, c.cfg.SamplePercent) {
		if err := c.docs.UpdateOCRStatus(ctx, tenantID, doc.ID, model.OCRDeferred); err != nil {
			return nil, err
		}
		return &Outcome{Status: model.OCRDeferred}, nil
	}

	// Check-and-reserve one unit under the tenant lock so concurrent runs
	// cannot all pass the same remaining headroom. The balance of the page
	// count is settled after recognition.
	if err := c.reserveUnit(ctx, tenantID); err != nil {
		return nil, err
	}

	res, err := c.recognizer.Recognize(ctx, doc.StorageKey, doc.ContentType)
	if err != nil {
		c.refund(ctx, tenantID, 1)
		if uerr := c.docs.UpdateOCRStatus(ctx, tenantID, doc.ID, model.OCRFailed); uerr != nil {
			return nil, uerr
		}
		return nil, err
	}

	units := int64(res.Pages)
	if units < 1 {
		units = 1
	}
	if err := c.debit(ctx, tenantID, doc.ID, units, 1); err != nil {
		return nil, err
	}

	out := &Outcome{
		Status:       model.OCRDone,
		Category:     res.Category,
		Confidence:   res.Confidence,
		UnitsDebited: units,
	}

	target := res.Category
	if res.Confidence < c.cfg.ConfidenceThreshold {
		target = ManualSortFolder
		out.ManualSort = true
	}
	created, err := c.place(ctx, tenantID, doc.ID, target)
	if err != nil {
		return nil, err
	}
	out.CreatedFolders = created

	if err := c.docs.UpdateOCRStatus(ctx, tenantID, doc.ID, model.OCRDone); err != nil {
		return nil, err
	}
	return out, nil
}

// Recover resolves a failed document. Retry re-runs recognition bypassing
// the sampling gate; manual_sort files the document into the caller's folder
// (the review folder when none is given); skip leaves the document unsorted
// and failed, with no auto-retry.
func (c *Classifier) Recover(ctx context.Context, tenantID, documentID, action, folderID string) (*Outcome, error) {
	doc, err := c.docs.FindByID(ctx, tenantID, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "document not found")
		}
		return nil, err
	}
	if doc.OCRStatus != model.OCRFailed && doc.OCRStatus != model.OCRDeferred {
		return nil, apperr.New(apperr.CodeInvalidArgument, "document is not awaiting recovery")
	}

	switch action {
	case ActionRetry:
		return c.process(ctx, tenantID, documentID, true)
	case ActionManualSort:
		if folderID != "" {
			if _, err := c.folders.FindByID(ctx, tenantID, folderID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, apperr.New(apperr.CodeNotFound, "folder not found")
				}
				return nil, apperr.Wrap(apperr.CodeRetryable, "load folder", err)
			}
			if err := c.docs.MoveToFolder(ctx, tenantID, documentID, &folderID); err != nil {
				return nil, err
			}
			if err := c.docs.UpdateOCRStatus(ctx, tenantID, documentID, model.OCRDone); err != nil {
				return nil, err
			}
			return &Outcome{Status: model.OCRDone, ManualSort: true}, nil
		}
		created, err := c.place(ctx, tenantID, documentID, ManualSortFolder)
		if err != nil {
			return nil, err
		}
		if err := c.docs.UpdateOCRStatus(ctx, tenantID, documentID, model.OCRDone); err != nil {
			return nil, err
		}
		return &Outcome{Status: model.OCRDone, ManualSort: true, CreatedFolders: created}, nil
	case ActionSkip:
		if err := c.docs.UpdateOCRStatus(ctx, tenantID, documentID, model.OCRFailed); err != nil {
			return nil, err
		}
		return &Outcome{Status: model.OCRFailed}, nil
	default:
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "unknown recovery action %q", action)
	}
}

// place moves a document into the named folder, creating it when absent.
func (c *Classifier) place(ctx context.Context, tenantID, documentID, folderName string) ([]string, error) {
	var created []string
	folder, err := c.folders.FindByName(ctx, tenantID, nil, folderName)
	if errors.Is(err, repository.ErrNotFound) {
		folder, err = c.folders.Create(ctx, &model.Folder{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Name:      folderName,
			CreatedAt: c.now().UTC(),
		})
		if err == nil {
			created = append(created, folderName)
		}
	}
	if err != nil {
		return nil, err
	}
	if err := c.docs.MoveToFolder(ctx, tenantID, documentID, &folder.ID); err != nil {
		return nil, err
	}
	return created, nil
}

// reserveUnit checks the processing quota and reserves one unit atomically
// with respect to other reservations for the same tenant.
func (c *Classifier) reserveUnit(ctx context.Context, tenantID string) error {
	release := c.locks.Acquire(tenantID)
	defer release()

	tenant, err := c.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return apperr.Wrap(apperr.CodeRetryable, "load tenant", err)
	}
	if err := quota.CheckProcessing(tenant, 1); err != nil {
		return err
	}
	if err := c.tenants.AddUnitsUsed(ctx, tenantID, 1); err != nil {
		return apperr.Wrap(apperr.CodeRetryable, "reserve unit", err)
	}
	return nil
}

func (c *Classifier) refund(ctx context.Context, tenantID string, units int64) {
	_ = c.tenants.AddUnitsUsed(ctx, tenantID, -units)
}

// debit settles the full unit cost, counting the reservation already held,
// and records the ledger entry. The auto top-up trigger runs afterwards;
// replenishment is best effort and never fails the debit.
func (c *Classifier) debit(ctx context.Context, tenantID, documentID string, units, reserved int64) error {
	if delta := units - reserved; delta != 0 {
		if err := c.tenants.AddUnitsUsed(ctx, tenantID, delta); err != nil {
			return err
		}
	}
	now := c.now().UTC()
	_, err := c.ledger.Append(ctx, &model.LedgerEntry{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Kind:      model.LedgerDebit,
		Units:     units,
		Reason:    "ocr:" + documentID,
		CycleKey:  quota.CycleKey(now),
		CreatedAt: now,
	})
	if err != nil {
		return err
	}
	if c.topups != nil {
		_, _ = c.topups.AutoTopUp(ctx, tenantID)
	}
	return nil
}
