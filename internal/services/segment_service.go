package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
)

const segmentMemberSampleSize = 1000

// Rule fields accepted without a document path.
var segmentFieldAliases = map[string]string{
	"country":          "location.country",
	"city":             "location.city",
	"region":           "location.region",
	"timezone":         "location.timezone",
	"device_type":      "device.device_type",
	"browser":          "device.browser",
	"os":               "device.os",
	"language":         "device.language",
	"referrer_source":  "referrer.source",
	"referrer_medium":  "referrer.medium",
	"campaign":         "referrer.campaign",
	"total_sessions":   "engagement.total_sessions",
	"total_time_spent": "engagement.total_time_spent",
	"total_events":     "engagement.total_events",
	"average_session":  "engagement.average_session_time",
}

var segmentFieldRoots = map[string]bool{
	"user_id":        true,
	"status":         true,
	"is_online":      true,
	"first_seen_at":  true,
	"last_seen_at":   true,
	"last_active_at": true,
	"location":       true,
	"device":         true,
	"referrer":       true,
	"engagement":     true,
}

type SegmentService interface {
	CreateSegment(ctx context.Context, segment *models.Segment) (*models.Segment, error)
	GetSegment(ctx context.Context, id primitive.ObjectID) (*models.Segment, error)
	ListSegments(ctx context.Context, params *utils.PaginationParams) ([]*models.Segment, int64, error)
	UpdateSegment(ctx context.Context, id primitive.ObjectID, update *models.Segment) (*models.Segment, error)
	DeleteSegment(ctx context.Context, id primitive.ObjectID) error

	EvaluateSegment(ctx context.Context, id primitive.ObjectID) (*models.SegmentEvaluation, error)
}

type segmentService struct {
	segmentRepo interfaces.SegmentRepository
	visitorRepo interfaces.VisitorRepository
	logger      *logger.Logger
	now         func() time.Time
}

func NewSegmentService(segmentRepo interfaces.SegmentRepository, visitorRepo interfaces.VisitorRepository, logger *logger.Logger) SegmentService {
	return &segmentService{
		segmentRepo: segmentRepo,
		visitorRepo: visitorRepo,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *segmentService) CreateSegment(ctx context.Context, segment *models.Segment) (*models.Segment, error) {
	if _, err := compileSegmentRules(segment.Rules); err != nil {
		return nil, err
	}
	if err := s.segmentRepo.Create(ctx, segment); err != nil {
		return nil, err
	}
	return segment, nil
}

func (s *segmentService) GetSegment(ctx context.Context, id primitive.ObjectID) (*models.Segment, error) {
	return s.segmentRepo.GetByID(ctx, id)
}

func (s *segmentService) ListSegments(ctx context.Context, params *utils.PaginationParams) ([]*models.Segment, int64, error) {
	return s.segmentRepo.List(ctx, params)
}

func (s *segmentService) UpdateSegment(ctx context.Context, id primitive.ObjectID, update *models.Segment) (*models.Segment, error) {
	if _, err := compileSegmentRules(update.Rules); err != nil {
		return nil, err
	}

	existing, err := s.segmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.Name = update.Name
	existing.Description = update.Description
	existing.Rules = update.Rules

	if err := s.segmentRepo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *segmentService) DeleteSegment(ctx context.Context, id primitive.ObjectID) error {
	return s.segmentRepo.Delete(ctx, id)
}

func (s *segmentService) EvaluateSegment(ctx context.Context, id primitive.ObjectID) (*models.SegmentEvaluation, error) {
	segment, err := s.segmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	filter, err := compileSegmentRules(segment.Rules)
	if err != nil {
		return nil, err
	}

	members, total, err := s.visitorRepo.FindMatching(ctx, filter, segmentMemberSampleSize)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.segmentRepo.SaveEvaluation(ctx, id, total, now); err != nil {
		s.logger.WithError(err).WithField("segment_id", id.Hex()).Warn("Failed to cache segment member count")
	}

	if members == nil {
		members = []string{}
	}
	return &models.SegmentEvaluation{
		SegmentID:   id.Hex(),
		MemberCount: total,
		Members:     members,
		EvaluatedAt: now,
	}, nil
}

// compileSegmentRules turns AND-ed rules into a visitor collection filter.
func compileSegmentRules(rules []models.SegmentRule) (map[string]interface{}, error) {
	if len(rules) == 0 {
		return nil, utils.NewValidationError("invalid segment", map[string]string{"rules": "at least one rule is required"})
	}

	clauses := make([]interface{}, 0, len(rules))
	for i, rule := range rules {
		field, err := segmentFieldPath(rule.Field)
		if err != nil {
			return nil, utils.NewValidationError("invalid segment rule", map[string]string{
				fmt.Sprintf("rules[%d].field", i): err.Error(),
			})
		}

		clause, err := segmentClause(rule.Operator, rule.Value)
		if err != nil {
			return nil, utils.NewValidationError("invalid segment rule", map[string]string{
				fmt.Sprintf("rules[%d]", i): err.Error(),
			})
		}
		clauses = append(clauses, map[string]interface{}{field: clause})
	}

	return map[string]interface{}{"$and": clauses}, nil
}

func segmentFieldPath(field string) (string, error) {
	field = strings.TrimSpace(field)
	if path, ok := segmentFieldAliases[field]; ok {
		return path, nil
	}
	if field == "" || strings.Contains(field, "$") {
		return "", fmt.Errorf("invalid field %q", field)
	}
	root := strings.SplitN(field, ".", 2)[0]
	if !segmentFieldRoots[root] {
		return "", fmt.Errorf("unsupported field %q", field)
	}
	return field, nil
}

func segmentClause(operator string, value interface{}) (interface{}, error) {
	switch operator {
	case models.SegmentOpEquals:
		return map[string]interface{}{"$eq": segmentValue(value)}, nil
	case models.SegmentOpNotEquals:
		return map[string]interface{}{"$ne": segmentValue(value)}, nil
	case models.SegmentOpContains:
		s, ok := value.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("contains requires a non-empty string")
		}
		return map[string]interface{}{"$regex": regexp.QuoteMeta(s), "$options": "i"}, nil
	case models.SegmentOpGT, models.SegmentOpGTE, models.SegmentOpLT, models.SegmentOpLTE:
		if value == nil {
			return nil, fmt.Errorf("%s requires a value", operator)
		}
		return map[string]interface{}{"$" + operator: segmentValue(value)}, nil
	case models.SegmentOpIn:
		values, ok := value.([]interface{})
		if !ok || len(values) == 0 {
			return nil, fmt.Errorf("in requires a non-empty list")
		}
		converted := make([]interface{}, len(values))
		for i, v := range values {
			converted[i] = segmentValue(v)
		}
		return map[string]interface{}{"$in": converted}, nil
	case models.SegmentOpExists:
		exists := true
		if b, ok := value.(bool); ok {
			exists = b
		}
		return map[string]interface{}{"$exists": exists}, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", operator)
	}
}

// segmentValue reads RFC 3339 strings as timestamps so date fields compare.
func segmentValue(value interface{}) interface{} {
	if s, ok := value.(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return value
}
