package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"loadboard/auth"
	"loadboard/load"
)

var (
	// ErrNoFile signals an upload with no content.
	ErrNoFile = errors.New("document: no file provided")
	// ErrRender wraps failures of the external rendering capability.
	ErrRender = errors.New("document: render failed")
)

// Type enumerates the artifacts generated per load.
type Type string

const (
	TypeBOL     Type = "bol"
	TypeInvoice Type = "invoice"
	TypePOD     Type = "pod"
	TypeRateCon Type = "ratecon"
)

// LoadGetter fetches the load a document derives from.
type LoadGetter interface {
	GetByID(ctx context.Context, id string) (load.Load, error)
}

// UserGetter resolves party names for document bodies.
type UserGetter interface {
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

// Service renders load-derived documents into durable file artifacts at
// deterministic, overwritable paths ({loadId}-{type}.pdf under the uploads
// directory).
type Service struct {
	loads         LoadGetter
	users         UserGetter
	renderer      Renderer
	dir           string
	renderTimeout time.Duration
	now           func() time.Time
}

func NewService(loads LoadGetter, users UserGetter, renderer Renderer, dir string) *Service {
	return &Service{
		loads:         loads,
		users:         users,
		renderer:      renderer,
		dir:           dir,
		renderTimeout: 30 * time.Second,
		now:           time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithRenderTimeout(d time.Duration) *Service {
	s.renderTimeout = d
	return s
}

// Path returns the deterministic artifact path for a load and document type.
func (s *Service) Path(loadID string, t Type) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.pdf", loadID, t))
}

// GenerateBOL renders the Bill of Lading for a load and returns the artifact
// path once the file is durably written.
func (s *Service) GenerateBOL(ctx context.Context, loadID string) (string, error) {
	l, err := s.loads.GetByID(ctx, loadID)
	if err != nil {
		return "", err
	}

	shipperName, carrierName := s.partyNames(ctx, l)
	doc := Layout{
		Title: "BILL OF LADING",
		Lines: []string{
			"Load: " + l.Title,
			"Shipper: " + shipperName,
			"Carrier: " + carrierName,
			"Origin: " + l.Origin,
			"Destination: " + l.Destination,
			fmt.Sprintf("Rate: $%.2f", l.Rate),
			"Date: " + s.now().Format("January 2, 2006"),
			"",
			"Signature: ____________________________",
		},
	}

	return s.renderAndStore(ctx, l.ID, TypeBOL, doc)
}

// GenerateRateConfirmation renders the accept-time rate confirmation for a
// load and its carrier.
func (s *Service) GenerateRateConfirmation(ctx context.Context, l load.Load, carrier *auth.User) (string, error) {
	shipperName, carrierName := s.partyNames(ctx, l)
	if carrier != nil {
		carrierName = carrier.FullName
	}

	doc := Layout{
		Title: "RATE CONFIRMATION",
		Lines: []string{
			"Load: " + l.Title,
			"Shipper: " + shipperName,
			"Carrier: " + carrierName,
			"Origin: " + l.Origin,
			"Destination: " + l.Destination,
			"Equipment: " + l.EquipmentType,
			fmt.Sprintf("Agreed rate: $%.2f", l.Rate),
			"Pickup: " + formatDate(l.PickupDate),
			"Delivery: " + formatDate(l.DeliveryDate),
			"Date: " + s.now().Format("January 2, 2006"),
			"",
			"Signature: ____________________________",
		},
	}

	return s.renderAndStore(ctx, l.ID, TypeRateCon, doc)
}

// invoiceTemplate is substituted with load-derived values, then handed to the
// HTML rendering capability.
const invoiceTemplate = `<!DOCTYPE html>
<html>
<head><title>Invoice {{.InvoiceNumber}}</title></head>
<body>
  <h1>Invoice {{.InvoiceNumber}}</h1>
  <p>Date: {{.Date}}</p>
  <table>
    <tr><td>Billed to</td><td>{{.ShipperName}}</td></tr>
    <tr><td>Carrier</td><td>{{.CarrierName}}</td></tr>
    <tr><td>Route</td><td>{{.Route}}</td></tr>
    <tr><td>Equipment</td><td>{{.Equipment}}</td></tr>
    <tr><td>Amount due</td><td>{{.Amount}}</td></tr>
  </table>
</body>
</html>`

var invoiceTmpl = template.Must(template.New("invoice").Parse(invoiceTemplate))

// GenerateInvoice substitutes load-derived values into the invoice template,
// converts the HTML through the rendering capability, and stores the result.
func (s *Service) GenerateInvoice(ctx context.Context, loadID string) (string, error) {
	l, err := s.loads.GetByID(ctx, loadID)
	if err != nil {
		return "", err
	}

	shipperName, carrierName := s.partyNames(ctx, l)
	now := s.now()

	var html bytes.Buffer
	err = invoiceTmpl.Execute(&html, map[string]string{
		"InvoiceNumber": fmt.Sprintf("INV-%d", now.Unix()),
		"Date":          now.Format("January 2, 2006"),
		"ShipperName":   shipperName,
		"CarrierName":   carrierName,
		"Route":         l.Origin + " to " + l.Destination,
		"Equipment":     l.EquipmentType,
		"Amount":        fmt.Sprintf("$%.2f", l.Rate),
	})
	if err != nil {
		return "", fmt.Errorf("document: execute invoice template: %w", err)
	}

	renderCtx, cancel := context.WithTimeout(ctx, s.renderTimeout)
	defer cancel()

	pdf, err := s.renderer.RenderHTML(renderCtx, html.String())
	if err != nil {
		return "", fmt.Errorf("%w: invoice for %s: %v", ErrRender, l.ID, err)
	}

	return s.store(l.ID, TypeInvoice, pdf)
}

// UploadPOD stores an uploaded proof-of-delivery file at the deterministic
// POD path, replacing any prior artifact.
func (s *Service) UploadPOD(ctx context.Context, loadID string, file io.Reader) (string, error) {
	if file == nil {
		return "", ErrNoFile
	}
	if _, err := s.loads.GetByID(ctx, loadID); err != nil {
		return "", err
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("document: read upload: %w", err)
	}
	if len(content) == 0 {
		return "", ErrNoFile
	}

	return s.store(loadID, TypePOD, content)
}

func (s *Service) renderAndStore(ctx context.Context, loadID string, t Type, doc Layout) (string, error) {
	renderCtx, cancel := context.WithTimeout(ctx, s.renderTimeout)
	defer cancel()

	pdf, err := s.renderer.RenderDocument(renderCtx, doc)
	if err != nil {
		return "", fmt.Errorf("%w: %s for %s: %v", ErrRender, t, loadID, err)
	}

	return s.store(loadID, t, pdf)
}

// store writes the artifact through a temp file and renames it into place so
// concurrent regeneration replaces atomically. It returns only after the
// bytes are flushed to disk.
func (s *Service) store(loadID string, t Type, content []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("document: ensure upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".pending-*")
	if err != nil {
		return "", fmt.Errorf("document: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("document: write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("document: flush artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("document: close artifact: %w", err)
	}

	path := s.Path(loadID, t)
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("document: place artifact: %w", err)
	}

	return path, nil
}

func (s *Service) partyNames(ctx context.Context, l load.Load) (shipper, carrier string) {
	shipper = "(unknown shipper)"
	carrier = "(unassigned)"

	if s.users == nil {
		return shipper, carrier
	}
	if u, err := s.users.GetUserByID(ctx, l.PostedBy); err == nil {
		shipper = displayName(u)
	}
	if l.AcceptedBy != nil {
		if u, err := s.users.GetUserByID(ctx, *l.AcceptedBy); err == nil {
			carrier = displayName(u)
		}
	}
	return shipper, carrier
}

func displayName(u *auth.User) string {
	if u.Company != nil && strings.TrimSpace(*u.Company) != "" {
		return fmt.Sprintf("%s (%s)", u.FullName, *u.Company)
	}
	return u.FullName
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "TBD"
	}
	return t.Format("January 2, 2006")
}
