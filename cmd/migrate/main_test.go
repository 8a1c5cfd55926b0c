package main

import "testing"

func TestSchemaProvider(t *testing.T) {
	tests := []struct {
		schema     string
		wantDriver string
		wantErr    bool
	}{
		{schema: "config", wantDriver: "sqlite"},
		{schema: "readings", wantDriver: "postgres"},
		{schema: "billing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.schema, func(t *testing.T) {
			driver, provider, err := schemaProvider(tt.schema)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("schemaProvider: %v", err)
			}
			if driver != tt.wantDriver {
				t.Errorf("driver = %q, want %q", driver, tt.wantDriver)
			}
			migrations, err := provider.GetMigrations()
			if err != nil {
				t.Fatalf("GetMigrations: %v", err)
			}
			if len(migrations) == 0 {
				t.Error("no embedded migrations")
			}
		})
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "2", want: 2},
		{in: "0", want: 0},
		{in: "", wantErr: true},
		{in: "two", wantErr: true},
		{in: "-1", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseTarget(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTarget(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseTarget(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := run(nil, "sideways", ""); err == nil {
		t.Error("expected error for unknown command")
	}
	if err := run(nil, "down", ""); err == nil {
		t.Error("expected error for down without a target")
	}
}
