package api

import "github.com/vango-go/vango"

// Version is the release stamp reported by the health endpoint.
const Version = "0.2.0"

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func HealthGET(ctx vango.Ctx) (*vango.Response[HealthResponse], error) {
	return vango.OK(HealthResponse{
		Status:  "ok",
		Service: "helper-chat",
		Version: Version,
	}), nil
}
