package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loadboard/auth"
	"loadboard/load"
)

type fakeLoads struct {
	loads map[string]load.Load
}

func (f *fakeLoads) GetByID(ctx context.Context, id string) (load.Load, error) {
	l, ok := f.loads[id]
	if !ok {
		return load.Load{}, load.ErrNotFound
	}
	return l, nil
}

type fakeUsers struct {
	users map[string]*auth.User
}

func (f *fakeUsers) GetUserByID(ctx context.Context, userID string) (*auth.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

type failingRenderer struct{}

func (failingRenderer) RenderDocument(ctx context.Context, doc Layout) ([]byte, error) {
	return nil, errors.New("renderer down")
}

func (failingRenderer) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	return nil, errors.New("renderer down")
}

func testService(t *testing.T) (*Service, string) {
	t.Helper()

	carrierID := "carrier-1"
	loads := &fakeLoads{loads: map[string]load.Load{
		"load-1": {
			ID:            "load-1",
			Title:         "Widgets",
			Origin:        "Dallas",
			Destination:   "Houston",
			EquipmentType: "Dry Van",
			Rate:          1500,
			Status:        load.StatusAccepted,
			PostedBy:      "shipper-1",
			AcceptedBy:    &carrierID,
		},
	}}
	company := "Acme Logistics"
	users := &fakeUsers{users: map[string]*auth.User{
		"shipper-1": {ID: "shipper-1", FullName: "Sam Shipper", Company: &company, Email: "sam@example.com"},
		"carrier-1": {ID: "carrier-1", FullName: "Cara Carrier", Email: "cara@example.com"},
	}}

	dir := t.TempDir()
	svc := NewService(loads, users, TextRenderer{}, dir).
		WithClock(func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) })
	return svc, dir
}

func TestGenerateBOL_WritesDeterministicPath(t *testing.T) {
	svc, dir := testService(t)

	path, err := svc.GenerateBOL(context.Background(), "load-1")
	if err != nil {
		t.Fatalf("generate bol: %v", err)
	}
	if want := filepath.Join(dir, "load-1-bol.pdf"); path != want {
		t.Fatalf("path %q, want %q", path, want)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	for _, want := range []string{"BILL OF LADING", "Sam Shipper (Acme Logistics)", "Cara Carrier", "Dallas", "Houston", "$1500.00"} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("artifact missing %q:\n%s", want, content)
		}
	}
}

func TestGenerateBOL_RegenerationReplacesArtifact(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	first, err := svc.GenerateBOL(ctx, "load-1")
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, err := svc.GenerateBOL(ctx, "load-1")
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if first != second {
		t.Fatalf("regeneration moved the artifact: %q vs %q", first, second)
	}

	entries, err := os.ReadDir(filepath.Dir(first))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single artifact, found %d entries", len(entries))
	}
}

func TestGenerateInvoice_SubstitutesLoadValues(t *testing.T) {
	svc, dir := testService(t)

	path, err := svc.GenerateInvoice(context.Background(), "load-1")
	if err != nil {
		t.Fatalf("generate invoice: %v", err)
	}
	if want := filepath.Join(dir, "load-1-invoice.pdf"); path != want {
		t.Fatalf("path %q, want %q", path, want)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	for _, want := range []string{"INV-", "Dallas to Houston", "Dry Van", "$1500.00", "Sam Shipper"} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("invoice missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(string(content), "{{") {
		t.Fatalf("unsubstituted placeholder in invoice:\n%s", content)
	}
}

func TestGenerate_UnknownLoad(t *testing.T) {
	svc, _ := testService(t)

	if _, err := svc.GenerateBOL(context.Background(), "missing"); !errors.Is(err, load.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerate_RenderFailure(t *testing.T) {
	svc, dir := testService(t)
	svc.renderer = failingRenderer{}

	_, err := svc.GenerateBOL(context.Background(), "load-1")
	if !errors.Is(err, ErrRender) {
		t.Fatalf("expected ErrRender, got %v", err)
	}

	// No artifact left behind on failure.
	if _, statErr := os.Stat(filepath.Join(dir, "load-1-bol.pdf")); !os.IsNotExist(statErr) {
		t.Fatalf("artifact exists after render failure: %v", statErr)
	}
}

func TestUploadPOD(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()

	if _, err := svc.UploadPOD(ctx, "load-1", nil); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile for nil reader, got %v", err)
	}
	if _, err := svc.UploadPOD(ctx, "load-1", strings.NewReader("")); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile for empty upload, got %v", err)
	}
	if _, err := svc.UploadPOD(ctx, "missing", strings.NewReader("scan")); !errors.Is(err, load.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	path, err := svc.UploadPOD(ctx, "load-1", strings.NewReader("signed delivery scan"))
	if err != nil {
		t.Fatalf("upload pod: %v", err)
	}
	if want := filepath.Join(dir, "load-1-pod.pdf"); path != want {
		t.Fatalf("path %q, want %q", path, want)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "signed delivery scan" {
		t.Fatalf("stored content %q", content)
	}
}

type recordingEmailer struct {
	recipient string
	subject   string
	filePath  string
	calls     int
}

func (r *recordingEmailer) SendDocumentEmail(recipient, subject, filePath string) {
	r.calls++
	r.recipient = recipient
	r.subject = subject
	r.filePath = filePath
}

func TestAcceptanceOrchestrator_GeneratesAndEmails(t *testing.T) {
	svc, dir := testService(t)
	users := &fakeUsers{users: map[string]*auth.User{
		"carrier-1": {ID: "carrier-1", FullName: "Cara Carrier", Email: "cara@example.com"},
	}}
	mail := &recordingEmailer{}
	orch := NewAcceptanceOrchestrator(svc, users, mail, nil)

	carrierID := "carrier-1"
	orch.LoadAccepted(context.Background(), load.Load{
		ID:         "load-1",
		Title:      "Widgets",
		Origin:     "Dallas",
		Status:     load.StatusAccepted,
		PostedBy:   "shipper-1",
		AcceptedBy: &carrierID,
	})

	if mail.calls != 1 {
		t.Fatalf("expected one email, got %d", mail.calls)
	}
	if mail.recipient != "cara@example.com" {
		t.Fatalf("email went to %q", mail.recipient)
	}
	if want := filepath.Join(dir, "load-1-ratecon.pdf"); mail.filePath != want {
		t.Fatalf("attached %q, want %q", mail.filePath, want)
	}
	if _, err := os.Stat(mail.filePath); err != nil {
		t.Fatalf("rate confirmation artifact missing: %v", err)
	}
}

func TestAcceptanceOrchestrator_FailuresStayContained(t *testing.T) {
	svc, _ := testService(t)
	svc.renderer = failingRenderer{}
	users := &fakeUsers{users: map[string]*auth.User{
		"carrier-1": {ID: "carrier-1", FullName: "Cara Carrier", Email: "cara@example.com"},
	}}
	mail := &recordingEmailer{}
	orch := NewAcceptanceOrchestrator(svc, users, mail, nil)

	carrierID := "carrier-1"
	// Must not panic or email when rendering fails.
	orch.LoadAccepted(context.Background(), load.Load{ID: "load-1", AcceptedBy: &carrierID})
	if mail.calls != 0 {
		t.Fatalf("emailed despite render failure: %d calls", mail.calls)
	}

	// Unknown carrier is logged, not fatal.
	unknown := "carrier-9"
	orch.LoadAccepted(context.Background(), load.Load{ID: "load-2", AcceptedBy: &unknown})
	if mail.calls != 0 {
		t.Fatalf("emailed despite carrier lookup failure: %d calls", mail.calls)
	}
}
