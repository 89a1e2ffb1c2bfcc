package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/danthegoodman1/gojsonutils"
	"github.com/lsjoeberg/deltactl/delta"
	"github.com/lsjoeberg/deltactl/filter"
	"github.com/lsjoeberg/deltactl/utils"
	"github.com/rs/zerolog"
)

type (
	TableReq struct {
		// Table location, `s3://bucket/prefix` or a local path
		URI            string `validate:"required"`
		StorageOptions map[string]string
		// How many seconds before the operation times out.
		//
		// Default `300`.
		MaxRuntimeSec *int64
	}

	OptimizeReqBody struct {
		TableReq
		// Target post-rewrite file size in bytes.
		//
		// Default 256MB.
		TargetSize *int64
		// Max number of concurrent bin rewrites.
		//
		// Default NumCPU.
		MaxConcurrentTasks *int
		// Commit progress at least this often during long rewrites.
		MinCommitIntervalSec   *int64
		PreserveInsertionOrder *bool
		// Partition predicates like `day >= 10`, all must match
		PartitionFilters []string
		// Columns to cluster by, z-order only
		ZOrderColumns []string
	}

	VacuumReqBody struct {
		TableReq
		RetentionHours     *int64
		DryRun             *bool
		NoEnforceRetention *bool
		PartitionFilters   []string
	}

	ExpireLogsReqBody struct {
		TableReq
		RetentionHours *int64
	}

	PropertiesReqBody struct {
		TableReq
		Properties map[string]string `validate:"required"`
	}
)

func (req *TableReq) timeoutCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, time.Second*time.Duration(utils.Deref(req.MaxRuntimeSec, 300)))
}

func optimizeOptions(req OptimizeReqBody) (delta.OptimizeOptions, error) {
	conds, err := filter.ParseConditions(req.PartitionFilters)
	if err != nil {
		return delta.OptimizeOptions{}, err
	}
	return delta.OptimizeOptions{
		TargetSize:             utils.Deref(req.TargetSize, 0),
		MaxConcurrentTasks:     utils.Deref(req.MaxConcurrentTasks, 0),
		MinCommitInterval:      time.Second * time.Duration(utils.Deref(req.MinCommitIntervalSec, 0)),
		PreserveInsertionOrder: utils.Deref(req.PreserveInsertionOrder, false),
		Filters:                conds,
	}, nil
}

func (s *HTTPServer) CompactHandler(c *CustomContext) error {
	var reqBody OptimizeReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := reqBody.timeoutCtx(c.Request().Context())
	defer cancel()

	opts, err := optimizeOptions(reqBody)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	tbl, err := s.openTable(ctx, reqBody.URI, reqBody.StorageOptions)
	if err != nil {
		return c.InternalError(err, "error opening table")
	}

	metrics, err := tbl.Compact(ctx, opts)
	if err != nil {
		return c.InternalError(err, "error compacting table")
	}

	zerolog.Ctx(ctx).Debug().Interface("metrics", metrics).Msg("compacted table")
	return c.JSON(http.StatusOK, metrics)
}

func (s *HTTPServer) ZOrderHandler(c *CustomContext) error {
	var reqBody OptimizeReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if len(reqBody.ZOrderColumns) == 0 {
		return c.String(http.StatusBadRequest, "ZOrderColumns is required")
	}

	ctx, cancel := reqBody.timeoutCtx(c.Request().Context())
	defer cancel()

	opts, err := optimizeOptions(reqBody)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	tbl, err := s.openTable(ctx, reqBody.URI, reqBody.StorageOptions)
	if err != nil {
		return c.InternalError(err, "error opening table")
	}

	metrics, err := tbl.ZOrder(ctx, reqBody.ZOrderColumns, opts)
	if err != nil {
		return c.InternalError(err, "error z-ordering table")
	}

	zerolog.Ctx(ctx).Debug().Interface("metrics", metrics).Msg("z-ordered table")
	return c.JSON(http.StatusOK, metrics)
}

func (s *HTTPServer) VacuumHandler(c *CustomContext) error {
	var reqBody VacuumReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := reqBody.timeoutCtx(c.Request().Context())
	defer cancel()

	tbl, err := s.openTable(ctx, reqBody.URI, reqBody.StorageOptions)
	if err != nil {
		return c.InternalError(err, "error opening table")
	}

	conds, err := filter.ParseConditions(reqBody.PartitionFilters)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	metrics, err := tbl.Vacuum(ctx, delta.VacuumOptions{
		Retention:          time.Hour * time.Duration(utils.Deref(reqBody.RetentionHours, 0)),
		DryRun:             utils.Deref(reqBody.DryRun, false),
		NoEnforceRetention: utils.Deref(reqBody.NoEnforceRetention, false),
		Filters:            conds,
	})
	if err != nil {
		return c.InternalError(err, "error vacuuming table")
	}

	return c.JSON(http.StatusOK, metrics)
}

func (s *HTTPServer) CheckpointHandler(c *CustomContext) error {
	var reqBody TableReq
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := reqBody.timeoutCtx(c.Request().Context())
	defer cancel()

	tbl, err := s.openTable(ctx, reqBody.URI, reqBody.StorageOptions)
	if err != nil {
		return c.InternalError(err, "error opening table")
	}

	lc, err := tbl.CreateCheckpoint(ctx)
	if err != nil {
		return c.InternalError(err, "error writing checkpoint")
	}

	return c.JSON(http.StatusOK, lc)
}

func (s *HTTPServer) ExpireLogsHandler(c *CustomContext) error {
	var reqBody ExpireLogsReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := reqBody.timeoutCtx(c.Request().Context())
	defer cancel()

	tbl, err := s.openTable(ctx, reqBody.URI, reqBody.StorageOptions)
	if err != nil {
		return c.InternalError(err, "error opening table")
	}

	metrics, err := tbl.ExpireLogs(ctx, time.Hour*time.Duration(utils.Deref(reqBody.RetentionHours, 0)))
	if err != nil {
		return c.InternalError(err, "error expiring logs")
	}

	return c.JSON(http.StatusOK, metrics)
}

func (s *HTTPServer) SetPropertiesHandler(c *CustomContext) error {
	var reqBody PropertiesReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := reqBody.timeoutCtx(c.Request().Context())
	defer cancel()

	tbl, err := s.openTable(ctx, reqBody.URI, reqBody.StorageOptions)
	if err != nil {
		return c.InternalError(err, "error opening table")
	}

	version, err := tbl.SetProperties(ctx, reqBody.Properties)
	if err != nil {
		return c.InternalError(err, "error setting table properties")
	}

	return c.JSON(http.StatusOK, map[string]any{"version": version})
}

func (s *HTTPServer) SchemaHandler(c *CustomContext) error {
	uri := c.QueryParam("uri")
	if uri == "" {
		return c.String(http.StatusBadRequest, "uri query parameter is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*30)
	defer cancel()

	tbl, err := s.openTable(ctx, uri, nil)
	if err != nil {
		return c.InternalError(err, "error opening table")
	}

	schema, err := tbl.Schema(ctx)
	if err != nil {
		return c.InternalError(err, "error reading schema")
	}

	return c.JSON(http.StatusOK, schema)
}

func (s *HTTPServer) DetailsHandler(c *CustomContext) error {
	uri := c.QueryParam("uri")
	if uri == "" {
		return c.String(http.StatusBadRequest, "uri query parameter is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*30)
	defer cancel()

	tbl, err := s.openTable(ctx, uri, nil)
	if err != nil {
		return c.InternalError(err, "error opening table")
	}

	details, err := tbl.Details(ctx)
	if err != nil {
		return c.InternalError(err, "error reading table details")
	}

	if c.QueryParam("flat") == "1" {
		flat, err := flattenDetails(details)
		if err != nil {
			return c.InternalError(err, "error flattening details")
		}
		return c.JSON(http.StatusOK, flat)
	}
	return c.JSON(http.StatusOK, details)
}

// flattenDetails renders details as a single-level map with dotted keys,
// handy for metric scrapers that can't walk nested JSON.
func flattenDetails(details delta.TableDetails) (map[string]any, error) {
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("error in json.Marshal: %w", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(b, &asMap); err != nil {
		return nil, fmt.Errorf("error in json.Unmarshal: %w", err)
	}
	flat, err := gojsonutils.Flatten(asMap, nil)
	if err != nil {
		return nil, fmt.Errorf("error in gojsonutils.Flatten: %w", err)
	}
	flatMap, ok := flat.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("flattened details was a %T, not a map", flat)
	}
	return flatMap, nil
}
