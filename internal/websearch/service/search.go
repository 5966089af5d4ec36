package service

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	apperrors "github.com/lk2023060901/ai-search-backend/internal/pkg/errors"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/response"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/analytics"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/biz"
)

const (
	defaultLimit = 10
	defaultHours = 24
	maxLimit     = 1000
	maxHours     = 24 * 30
)

// SearchService 搜索 HTTP 服务
type SearchService struct {
	uc     *biz.SearchUseCase
	logger *logger.Logger
}

// NewSearchService 创建搜索服务
func NewSearchService(uc *biz.SearchUseCase, log *logger.Logger) *SearchService {
	return &SearchService{
		uc:     uc,
		logger: log.Named("search-service"),
	}
}

// RegisterRoutes mounts the search API under rg.
func (s *SearchService) RegisterRoutes(rg *gin.RouterGroup) {
	search := rg.Group("/search")
	{
		search.POST("", s.Search)
		search.GET("/providers", s.ListProviders)

		search.GET("/cache/stats", s.CacheStats)
		search.DELETE("/cache", s.ClearCache)

		a := search.Group("/analytics")
		a.GET("/report", s.Report)
		a.GET("/providers", s.ProviderStats)
		a.GET("/queries", s.TopQueries)
		a.GET("/trends", s.HourlyTrends)
		a.GET("/errors", s.ErrorSummary)
		a.GET("/overall", s.OverallStats)
		a.GET("/export", s.ExportHistory)
		a.POST("/reset", s.ResetAnalytics)
	}
}

// Search 执行搜索
func (s *SearchService) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		response.ErrorWithCode(c, apperrors.ErrSearchInvalidQuery, "query must not be blank")
		return
	}
	if req.MaxResults < 0 {
		response.ErrorWithCode(c, apperrors.ErrSearchInvalidParam, "max_results must be >= 0")
		return
	}

	exec := s.uc.Search(c.Request.Context(), &biz.SearchRequest{
		Query:      req.Query,
		MaxResults: req.MaxResults,
		Provider:   req.Provider,
	})
	response.Success(c, exec)
}

// ListProviders 已注册的搜索提供商
func (s *SearchService) ListProviders(c *gin.Context) {
	ids := s.uc.Providers()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	response.Success(c, ProvidersResponse{Providers: out})
}

// CacheStats 缓存统计
func (s *SearchService) CacheStats(c *gin.Context) {
	response.Success(c, s.uc.CacheStats(c.Request.Context()))
}

// ClearCache 清空缓存，pattern 非空时只删除匹配项
func (s *SearchService) ClearCache(c *gin.Context) {
	pattern := c.Query("pattern")
	removed := s.uc.ClearCache(c.Request.Context(), pattern)

	s.logger.WithContext(c.Request.Context()).Info("search cache cleared",
		zap.String("pattern", pattern),
		zap.Int("removed", removed),
	)
	response.Success(c, ClearCacheResponse{Removed: removed})
}

func (s *SearchService) Report(c *gin.Context) {
	response.Success(c, s.uc.Analytics().PerformanceReport())
}

func (s *SearchService) ProviderStats(c *gin.Context) {
	response.Success(c, s.uc.Analytics().ProviderStats())
}

func (s *SearchService) TopQueries(c *gin.Context) {
	limit, ok := boundedParam(c, "limit", defaultLimit, maxLimit)
	if !ok {
		return
	}
	response.Success(c, s.uc.Analytics().TopQueries(limit))
}

func (s *SearchService) HourlyTrends(c *gin.Context) {
	hours, ok := boundedParam(c, "hours", defaultHours, maxHours)
	if !ok {
		return
	}
	response.Success(c, s.uc.Analytics().HourlyTrends(hours))
}

func (s *SearchService) ErrorSummary(c *gin.Context) {
	limit, ok := boundedParam(c, "limit", defaultLimit, maxLimit)
	if !ok {
		return
	}
	response.Success(c, s.uc.Analytics().ErrorSummary(limit))
}

func (s *SearchService) OverallStats(c *gin.Context) {
	response.Success(c, s.uc.Analytics().OverallStats())
}

// ExportHistory 导出历史记录
func (s *SearchService) ExportHistory(c *gin.Context) {
	format := c.DefaultQuery("format", analytics.FormatJSON)
	data, err := s.uc.Analytics().ExportHistory(format)
	if err != nil {
		if errors.Is(err, analytics.ErrUnsupportedFormat) {
			response.HandleError(c, apperrors.Wrap(err, apperrors.ErrSearchUnsupportedFormat, format))
			return
		}
		s.logger.Error("failed to export analytics history", zap.Error(err))
		response.HandleError(c, err)
		return
	}
	response.Success(c, json.RawMessage(data))
}

// ResetAnalytics 清空分析数据
func (s *SearchService) ResetAnalytics(c *gin.Context) {
	s.uc.Analytics().Reset()
	s.logger.WithContext(c.Request.Context()).Info("search analytics reset")
	response.Success(c, nil)
}

// boundedParam reads a positive integer query parameter, capped at max.
// It writes a 400 response and returns false when the value is not a positive integer.
func boundedParam(c *gin.Context, name string, def, max int) (int, bool) {
	raw, present := c.GetQuery(name)
	if !present || raw == "" {
		return def, true
	}
	n, err := cast.ToIntE(raw)
	if err != nil || n <= 0 {
		response.ErrorWithCode(c, apperrors.ErrSearchInvalidParam, name+" must be a positive integer")
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}
