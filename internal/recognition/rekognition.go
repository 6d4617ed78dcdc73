package recognition

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/config"
	"github.com/kozaktomas/photo-archive/internal/database"
)

const service = "rekognition"

// API is the subset of the Rekognition client used here.
type API interface {
	DetectLabels(ctx context.Context, in *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
	IndexFaces(ctx context.Context, in *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	DetectText(ctx context.Context, in *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
	RecognizeCelebrities(ctx context.Context, in *rekognition.RecognizeCelebritiesInput, optFns ...func(*rekognition.Options)) (*rekognition.RecognizeCelebritiesOutput, error)
	SearchFaces(ctx context.Context, in *rekognition.SearchFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesOutput, error)
	SearchFacesByImage(ctx context.Context, in *rekognition.SearchFacesByImageInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesByImageOutput, error)
	CreateCollection(ctx context.Context, in *rekognition.CreateCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error)
}

// Rekognition implements Service on AWS Rekognition.
type Rekognition struct {
	api          API
	collectionID string
	cfg          config.RecognitionConfig
	log          *zap.Logger
}

// New creates a Rekognition service for the given face collection.
func New(api API, collectionID string, cfg config.RecognitionConfig, log *zap.Logger) *Rekognition {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rekognition{api: api, collectionID: collectionID, cfg: cfg, log: log}
}

// NewFromConfig creates the SDK client from a loaded AWS config.
func NewFromConfig(awsCfg aws.Config, collectionID string, cfg config.RecognitionConfig, log *zap.Logger) *Rekognition {
	return New(rekognition.NewFromConfig(awsCfg), collectionID, cfg, log)
}

// call bounds one remote call by the configured timeout.
func (r *Rekognition) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.Timeout)
}

func (r *Rekognition) DetectLabels(ctx context.Context, img Image) ([]database.Label, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	out, err := r.api.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         toImage(img),
		MaxLabels:     positive(r.cfg.MaxLabels),
		MinConfidence: aws.Float32(float32(r.cfg.MinLabelConfidence)),
	})
	if err != nil {
		return nil, database.NewServiceError(service, "DetectLabels", err)
	}
	return convertLabels(out.Labels), nil
}

func (r *Rekognition) IndexFaces(ctx context.Context, img Image, externalImageID string) ([]database.FaceObservation, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	in := &rekognition.IndexFacesInput{
		CollectionId:        aws.String(r.collectionID),
		Image:               toImage(img),
		DetectionAttributes: []types.Attribute{types.AttributeAll},
		MaxFaces:            positive(r.cfg.MaxFaces),
	}
	if r.cfg.QualityFilter != "" {
		in.QualityFilter = types.QualityFilter(r.cfg.QualityFilter)
	}
	if id := ExternalImageID(externalImageID); id != "" {
		in.ExternalImageId = aws.String(id)
	}

	out, err := r.api.IndexFaces(ctx, in)
	if err != nil {
		return nil, database.NewServiceError(service, "IndexFaces", err)
	}
	if len(out.UnindexedFaces) > 0 {
		r.log.Debug("faces not indexed",
			zap.String("image", externalImageID),
			zap.Int("count", len(out.UnindexedFaces)))
	}
	return convertFaceRecords(out.FaceRecords), nil
}

func (r *Rekognition) DetectText(ctx context.Context, img Image) ([]TextDetection, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	out, err := r.api.DetectText(ctx, &rekognition.DetectTextInput{Image: toImage(img)})
	if err != nil {
		return nil, database.NewServiceError(service, "DetectText", err)
	}
	return convertText(out.TextDetections), nil
}

func (r *Rekognition) RecognizeCelebrities(ctx context.Context, img Image) ([]database.Celebrity, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	out, err := r.api.RecognizeCelebrities(ctx, &rekognition.RecognizeCelebritiesInput{Image: toImage(img)})
	if err != nil {
		return nil, database.NewServiceError(service, "RecognizeCelebrities", err)
	}
	celebs := make([]database.Celebrity, 0, len(out.CelebrityFaces))
	for _, c := range out.CelebrityFaces {
		celebs = append(celebs, database.Celebrity{
			Name:       aws.ToString(c.Name),
			Confidence: float64(aws.ToFloat32(c.MatchConfidence)),
		})
	}
	return celebs, nil
}

func (r *Rekognition) SearchFacesByFaceID(ctx context.Context, faceID string, threshold float64, maxFaces int) ([]FaceMatch, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	out, err := r.api.SearchFaces(ctx, &rekognition.SearchFacesInput{
		CollectionId:       aws.String(r.collectionID),
		FaceId:             aws.String(faceID),
		FaceMatchThreshold: aws.Float32(float32(threshold)),
		MaxFaces:           positive(maxFaces),
	})
	if err != nil {
		return nil, database.NewServiceError(service, "SearchFaces", err)
	}
	return convertMatches(out.FaceMatches), nil
}

func (r *Rekognition) SearchFacesByImage(ctx context.Context, img Image, threshold float64, maxFaces int) ([]FaceMatch, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	out, err := r.api.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId:       aws.String(r.collectionID),
		Image:              toImage(img),
		FaceMatchThreshold: aws.Float32(float32(threshold)),
		MaxFaces:           positive(maxFaces),
	})
	if err != nil {
		if isNoFaceError(err) {
			return nil, ErrNoFaceInImage
		}
		return nil, database.NewServiceError(service, "SearchFacesByImage", err)
	}
	return convertMatches(out.FaceMatches), nil
}

// isNoFaceError reports whether err is the InvalidParameterException
// Rekognition returns for an image without faces. Other invalid parameters
// (bad threshold, unreadable image) stay service errors.
func isNoFaceError(err error) bool {
	var invalid *types.InvalidParameterException
	if !errors.As(err, &invalid) {
		return false
	}
	return strings.Contains(strings.ToLower(invalid.ErrorMessage()), "no faces")
}

func (r *Rekognition) EnsureCollection(ctx context.Context) (bool, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	_, err := r.api.CreateCollection(ctx, &rekognition.CreateCollectionInput{
		CollectionId: aws.String(r.collectionID),
	})
	if err != nil {
		var exists *types.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			return false, nil
		}
		return false, database.NewServiceError(service, "CreateCollection", err)
	}
	r.log.Info("created face collection", zap.String("collection_id", r.collectionID))
	return true, nil
}

// positive leaves a limit unset so the API default applies.
func positive(n int) *int32 {
	if n <= 0 {
		return nil
	}
	return aws.Int32(int32(n))
}

var externalIDInvalid = regexp.MustCompile(`[^a-zA-Z0-9_.\-:]+`)

// ExternalImageID converts a filename into the character set Rekognition
// accepts for ExternalImageId.
func ExternalImageID(filename string) string {
	return externalIDInvalid.ReplaceAllString(filename, "_")
}

var _ Service = (*Rekognition)(nil)
