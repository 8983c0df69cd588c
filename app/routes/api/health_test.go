package api

import (
	"testing"

	"github.com/vango-go/vango"
)

func TestHealthGETReportsRelease(t *testing.T) {
	var ctx vango.Ctx
	resp, err := HealthGET(ctx)
	if err != nil {
		t.Fatalf("HealthGET() error = %v", err)
	}
	if resp == nil {
		t.Fatal("HealthGET() response = nil")
	}
	if Version == "" {
		t.Fatal("Version is empty")
	}
}
