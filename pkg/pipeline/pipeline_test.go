package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/deploy"
	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/validation"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r, err := schema.NewRegistry(schema.Table{
		Name: "settlement_cases",
		Fields: []schema.Field{
			{Name: "claimant_name", Type: schema.TypeText, Required: true, MaxLength: 200},
			{Name: "email", Type: schema.TypeEmail},
			{Name: "phone", Type: schema.TypePhone},
			{Name: "postal_code", Type: schema.TypePostalCode},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

const sampleCSV = `claimant_name,email,phone,zip_code
John Smith,john@example.com,555-123-4567,90210
Jane Doe,jane@example.com,555-987-6543,10001
Bob Lee,bob@example.com,555-000-1111,90210
`

func newTestPipeline(t *testing.T) (*Pipeline, *sink.MemorySink) {
	t.Helper()
	m := sink.NewMemorySink()
	p, err := New(testRegistry(t), m, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, m
}

func TestPipelineFullRun(t *testing.T) {
	ctx := context.Background()
	p, m := newTestPipeline(t)

	if p.Stage() != StageUpload {
		t.Fatalf("new pipeline must start at upload, got %s", p.Stage())
	}

	if err := p.Upload(writeCSV(t, sampleCSV)); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if p.Stage() != StageStaging {
		t.Errorf("expected staging after upload, got %s", p.Stage())
	}

	profiles, err := p.Profile()
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if len(profiles) != 4 {
		t.Fatalf("expected 4 profiles, got %d", len(profiles))
	}

	mappings, err := p.AutoMap()
	if err != nil {
		t.Fatalf("AutoMap failed: %v", err)
	}
	mapped := 0
	for _, fm := range mappings {
		if fm.IsMapped() {
			mapped++
		}
	}
	if mapped == 0 {
		t.Fatal("auto-mapping produced no mapped columns")
	}

	report, err := p.Validate(ctx, validation.DefaultSettings())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if report.BlockingErrors() != 0 {
		t.Fatalf("expected clean validation, got %d errors", report.BlockingErrors())
	}
	if p.Stage() != StageReview {
		t.Errorf("expected review after validation, got %s", p.Stage())
	}

	conf := deploy.Confirmations{
		DataReviewed:       true,
		MappingsVerified:   true,
		SettingsConfirmed:  true,
		ImpactAcknowledged: true,
	}
	outcome, err := p.Deploy(ctx, deploy.DefaultSettings(), conf)
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if !outcome.Success {
		t.Errorf("expected successful deploy: %+v", outcome)
	}
	if outcome.RecordsDeployed != 3 {
		t.Errorf("expected 3 records, got %d", outcome.RecordsDeployed)
	}
	if got := m.RowCount("settlement_cases"); got != 3 {
		t.Errorf("expected 3 rows in sink, got %d", got)
	}
	if p.Stage() != StageDeploy {
		t.Errorf("expected deploy stage, got %s", p.Stage())
	}
}

func TestPipelineGuardsValidationWithoutMappings(t *testing.T) {
	p, _ := newTestPipeline(t)
	if err := p.Upload(writeCSV(t, sampleCSV)); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, err := p.Profile(); err != nil {
		t.Fatalf("Profile failed: %v", err)
	}

	// На стадии mapping без привязок переход вперед должен быть отклонен
	err := p.Next()
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.To != StageValidation {
		t.Errorf("expected guard on validation, got %s", te.To)
	}
}

func TestPipelineNextBack(t *testing.T) {
	p, _ := newTestPipeline(t)
	if err := p.Upload(writeCSV(t, sampleCSV)); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	// staging -> mapping требует профилей
	if err := p.Next(); err == nil {
		t.Error("expected guard: columns not profiled")
	}
	if _, err := p.Profile(); err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if p.Stage() != StageMapping {
		t.Fatalf("expected mapping, got %s", p.Stage())
	}

	if err := p.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if p.Stage() != StageStaging {
		t.Errorf("expected staging after back, got %s", p.Stage())
	}
}

func TestPipelineBackAtFirstStage(t *testing.T) {
	p, _ := newTestPipeline(t)
	if err := p.Back(); err == nil {
		t.Error("expected error going back from upload")
	}
}

func TestPipelineValidateWithoutMappings(t *testing.T) {
	p, _ := newTestPipeline(t)
	if err := p.Upload(writeCSV(t, sampleCSV)); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, err := p.Validate(context.Background(), validation.DefaultSettings()); err == nil {
		t.Error("expected validation to be rejected without mappings")
	}
}

func TestPipelineDeployWithoutValidation(t *testing.T) {
	p, _ := newTestPipeline(t)
	if err := p.Upload(writeCSV(t, sampleCSV)); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, err := p.Profile(); err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if _, err := p.AutoMap(); err != nil {
		t.Fatalf("AutoMap failed: %v", err)
	}

	conf := deploy.Confirmations{DataReviewed: true, MappingsVerified: true, SettingsConfirmed: true, ImpactAcknowledged: true}
	_, err := p.Deploy(context.Background(), deploy.DefaultSettings(), conf)
	var abort *deploy.AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError without validation, got %v", err)
	}
}
