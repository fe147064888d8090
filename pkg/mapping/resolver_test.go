package mapping

import (
	"testing"

	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/profiler"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r, err := schema.NewRegistry(schema.Table{
		Name: "settlement_cases",
		Fields: []schema.Field{
			{Name: "case_number", Type: schema.TypeReferenceID, Required: true, MaxLength: 50},
			{Name: "claimant_name", Type: schema.TypeText, Required: true, MaxLength: 200},
			{Name: "email", Type: schema.TypeEmail, MaxLength: 254},
			{Name: "postal_code", Type: schema.TypePostalCode, MaxLength: 10},
			{Name: "status", Type: schema.TypeEnum, EnumValues: []string{"open", "closed"}},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func mappingFor(t *testing.T, mappings []FieldMapping, column string) FieldMapping {
	t.Helper()
	for _, m := range mappings {
		if m.SourceColumn == column {
			return m
		}
	}
	t.Fatalf("no mapping for column %q", column)
	return FieldMapping{}
}

func TestAutoMapExactAndSynonym(t *testing.T) {
	r := NewResolver(testRegistry(t))

	profiles := []profiler.Profile{
		{Column: "case_number", Type: schema.TypeText},
		{Column: "zip_code", Type: schema.TypePostalCode},
		{Column: "email", Type: schema.TypeEmail},
		{Column: "internal_notes", Type: schema.TypeText},
	}

	mappings := r.AutoMap(profiles)
	if len(mappings) != 4 {
		t.Fatalf("expected 4 mappings, got %d", len(mappings))
	}

	cn := mappingFor(t, mappings, "case_number")
	if cn.TargetField != "case_number" || cn.Confidence != 1.0 {
		t.Errorf("case_number: %+v", cn)
	}
	if !cn.Required {
		t.Error("case_number mapping must carry Required from the schema")
	}

	// zip_code -> postal_code через таблицу синонимов
	zip := mappingFor(t, mappings, "zip_code")
	if zip.TargetField != "postal_code" {
		t.Errorf("zip_code mapped to %q, want postal_code", zip.TargetField)
	}
	if zip.Confidence < 0.9 {
		t.Errorf("synonym confidence = %v, want >= 0.9", zip.Confidence)
	}
	if zip.TargetType != schema.TypePostalCode || zip.MaxLength != 10 {
		t.Errorf("zip_code must carry target field characteristics: %+v", zip)
	}

	// незнакомая колонка остается непривязанной
	notes := mappingFor(t, mappings, "internal_notes")
	if notes.IsMapped() {
		t.Errorf("internal_notes must stay unmapped, got %+v", notes)
	}
}

func TestAutoMapFieldTakenOnce(t *testing.T) {
	r := NewResolver(testRegistry(t))

	// две колонки претендуют на email — поле достается первой
	mappings := r.AutoMap([]profiler.Profile{
		{Column: "email", Type: schema.TypeEmail},
		{Column: "mail", Type: schema.TypeEmail},
	})

	first := mappingFor(t, mappings, "email")
	second := mappingFor(t, mappings, "mail")
	if first.TargetField != "email" {
		t.Errorf("email mapped to %q", first.TargetField)
	}
	if second.TargetField == "email" {
		t.Error("schema field must be bound at most once")
	}
}

func TestAutoMapTypeMismatchCutsConfidence(t *testing.T) {
	r := NewResolver(testRegistry(t))

	// имя совпадает, но тип профиля несовместим с типом поля
	mappings := r.AutoMap([]profiler.Profile{
		{Column: "email", Type: schema.TypeDate},
	})

	m := mappingFor(t, mappings, "email")
	// 1.0 * 0.5 = 0.5 — ниже порога, остается непривязанной
	if m.IsMapped() {
		t.Errorf("incompatible type must not auto-map: %+v", m)
	}
}

func TestUpdateInvariant(t *testing.T) {
	r := NewResolver(testRegistry(t))
	mappings := r.AutoMap([]profiler.Profile{
		{Column: "notes", Type: schema.TypeText},
	})

	// частичная привязка запрещена
	if err := r.Update(mappings, "notes", "settlement_cases", ""); err == nil {
		t.Error("partial binding must be rejected")
	}
	if err := r.Update(mappings, "notes", "", "email"); err == nil {
		t.Error("partial binding must be rejected")
	}

	// несуществующее поле
	if err := r.Update(mappings, "notes", "settlement_cases", "bogus"); err == nil {
		t.Error("unknown target field must be rejected")
	}
	if err := r.Update(mappings, "missing", "settlement_cases", "email"); err == nil {
		t.Error("unknown source column must be rejected")
	}

	// ручная привязка
	if err := r.Update(mappings, "notes", "settlement_cases", "email"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	m := mappingFor(t, mappings, "notes")
	if !m.IsMapped() || m.Confidence != 1.0 || m.TargetType != schema.TypeEmail {
		t.Errorf("manual binding: %+v", m)
	}

	// сброс привязки
	if err := r.Update(mappings, "notes", "", ""); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	cleared := mappingFor(t, mappings, "notes")
	if cleared.IsMapped() {
		t.Error("mapping must be cleared")
	}
}

func TestMissingRequired(t *testing.T) {
	r := NewResolver(testRegistry(t))

	mappings := r.AutoMap([]profiler.Profile{
		{Column: "case_number", Type: schema.TypeText},
	})

	missing := r.MissingRequired(mappings)
	if len(missing) != 1 {
		t.Fatalf("expected 1 missing required field, got %d: %v", len(missing), missing)
	}
	if missing[0].Field != "claimant_name" {
		t.Errorf("missing field = %q, want claimant_name", missing[0].Field)
	}

	if err := r.Update(mappings, "case_number", "settlement_cases", "claimant_name"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	// case_number теперь свободен, claimant_name закрыт
	missing = r.MissingRequired(mappings)
	if len(missing) != 1 || missing[0].Field != "case_number" {
		t.Errorf("missing = %v, want case_number only", missing)
	}
}

func TestMappedCount(t *testing.T) {
	mappings := []FieldMapping{
		{SourceColumn: "a", TargetTable: "t", TargetField: "f"},
		{SourceColumn: "b"},
		{SourceColumn: "c", TargetTable: "t", TargetField: "g"},
	}
	if n := MappedCount(mappings); n != 2 {
		t.Errorf("MappedCount = %d, want 2", n)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"email", "email", 100},
		{"Email_Address", "emailaddress", 100}, // нормализация убирает регистр и разделители
		{"", "email", 0},
		{"abcd", "abcx", 75},
	}

	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("ZIP_Code 2"); got != "zipcode2" {
		t.Errorf("Normalize = %q, want zipcode2", got)
	}
}

func TestAddCustomFieldMappable(t *testing.T) {
	reg := testRegistry(t)
	r := NewResolver(reg)

	if err := r.AddCustomField("settlement_cases", schema.Field{
		Name: "adjuster", Type: schema.TypeText,
	}); err != nil {
		t.Fatalf("AddCustomField failed: %v", err)
	}

	mappings := r.AutoMap([]profiler.Profile{
		{Column: "adjuster", Type: schema.TypeText},
	})
	if mappingFor(t, mappings, "adjuster").TargetField != "adjuster" {
		t.Error("custom field must be mappable after add")
	}
}
