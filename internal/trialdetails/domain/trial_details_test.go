package domain

import (
	"encoding/json"
	"testing"
)

func TestTrialDetails_JSONShape(t *testing.T) {
	td := TrialDetails{
		OSName:                  "Linux",
		OSArchitecture:          "amd64",
		OSVersion:               "6.1.0",
		SystemCPULoad:           NewDecimalFromFloat(0.25),
		FreePhysicalMemorySize:  NewDecimalFromUint(1024),
		TotalPhysicalMemorySize: NewDecimalFromUint(4096),
	}
	b, err := json.Marshal(td)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(raw) != 6 {
		t.Errorf("field count = %d, want 6: %s", len(raw), b)
	}
	for _, k := range []string{"osName", "osArchitecture", "osVersion"} {
		if _, ok := raw[k].(string); !ok {
			t.Errorf("%s = %T, want string", k, raw[k])
		}
	}
	for _, k := range []string{"systemCpuLoad", "freePhysicalMemorySize", "totalPhysicalMemorySize"} {
		if _, ok := raw[k].(float64); !ok {
			t.Errorf("%s = %T, want number", k, raw[k])
		}
	}
	if raw["systemCpuLoad"] != 0.25 {
		t.Errorf("systemCpuLoad = %v, want 0.25", raw["systemCpuLoad"])
	}
}

func TestDecimal_UnmarshalQuotedAndBare(t *testing.T) {
	var td TrialDetails
	in := `{"systemCpuLoad":"0.5","freePhysicalMemorySize":10,"totalPhysicalMemorySize":20}`
	if err := json.Unmarshal([]byte(in), &td); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if td.SystemCPULoad.String() != "0.5" {
		t.Errorf("SystemCPULoad = %s, want 0.5", td.SystemCPULoad)
	}
	if td.TotalPhysicalMemorySize.IntPart() != 20 {
		t.Errorf("TotalPhysicalMemorySize = %s, want 20", td.TotalPhysicalMemorySize)
	}
}
