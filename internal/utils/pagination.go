package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PaginationParams struct {
	Page     int    `json:"page" form:"page"`
	PageSize int    `json:"page_size" form:"page_size"`
	Sort     string `json:"sort" form:"sort"`
	Order    string `json:"order" form:"order"`
}

type PaginationMeta struct {
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// GetPaginationParams reads page, page_size, sort and order from the query.
// sort must be defaultSort or one of sortable; anything else falls back to
// defaultSort so clients cannot sort on unindexed fields.
func GetPaginationParams(c *gin.Context, defaultSort string, sortable ...string) *PaginationParams {
	params := &PaginationParams{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", DefaultPageSize),
		Sort:     defaultSort,
		Order:    "desc",
	}

	if params.Page < 1 {
		params.Page = 1
	}
	params.PageSize = int(ClampFloat64(float64(params.PageSize), MinPageSize, MaxPageSize))
	if sort := c.Query("sort"); Contains(sortable, sort) {
		params.Sort = sort
	}
	if c.Query("order") == "asc" {
		params.Order = "asc"
	}
	return params
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}

// GetFindOptions pages with skip/limit and breaks sort ties on _id so pages
// stay stable while documents share a sort value.
func (p *PaginationParams) GetFindOptions() *options.FindOptions {
	direction := -1
	if p.Order == "asc" {
		direction = 1
	}

	sort := bson.D{{Key: p.Sort, Value: direction}}
	if p.Sort != "_id" {
		sort = append(sort, bson.E{Key: "_id", Value: direction})
	}
	return options.Find().
		SetSkip(int64((p.Page - 1) * p.PageSize)).
		SetLimit(int64(p.PageSize)).
		SetSort(sort)
}

func CreatePaginationMeta(params *PaginationParams, total int64) *PaginationMeta {
	totalPages := int((total + int64(params.PageSize) - 1) / int64(params.PageSize))
	return &PaginationMeta{
		Page:        params.Page,
		PageSize:    params.PageSize,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     params.Page < totalPages,
		HasPrevious: params.Page > 1,
	}
}
