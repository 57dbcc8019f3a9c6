package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
)

// ClusterInfo is the subset of the root endpoint response docship reports.
type ClusterInfo struct {
	Endpoint    string
	Name        string `json:"name"`
	ClusterName string `json:"cluster_name"`
	ClusterUUID string `json:"cluster_uuid"`
	Version     struct {
		Number       string `json:"number"`
		Distribution string `json:"distribution"`
	} `json:"version"`
}

func ping(ctx context.Context, pool *Pool, endpoint string) (ClusterInfo, error) {
	conn, err := pool.Acquire(ctx, endpoint)
	if err != nil {
		return ClusterInfo{}, err
	}
	defer conn.Release()

	resp, err := pool.Execute(ctx, conn, Request{Method: http.MethodGet, Path: "/"})
	if err != nil {
		return ClusterInfo{}, err
	}
	if resp.Status/100 != 2 {
		return ClusterInfo{}, errors.Newf("%s answered %d: %s", endpoint, resp.Status, errorReason(resp.Body))
	}

	var info ClusterInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return ClusterInfo{}, errors.Wrapf(err, "decode cluster info from %s", endpoint)
	}
	info.Endpoint = endpoint
	return info, nil
}
