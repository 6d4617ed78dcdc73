package recognition

import (
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/kozaktomas/photo-archive/internal/database"
)

func toImage(img Image) *types.Image {
	if len(img.Bytes) > 0 {
		return &types.Image{Bytes: img.Bytes}
	}
	return &types.Image{
		S3Object: &types.S3Object{
			Bucket: aws.String(img.Bucket),
			Name:   aws.String(img.Key),
		},
	}
}

// score converts an API float32 score, rounded to 3 decimals so values like
// 80 survive the float32 round trip exactly.
func score(f *float32) float64 {
	return math.Round(float64(aws.ToFloat32(f))*1000) / 1000
}

func convertLabels(in []types.Label) []database.Label {
	labels := make([]database.Label, 0, len(in))
	for _, l := range in {
		label := database.Label{
			Name:       aws.ToString(l.Name),
			Confidence: score(l.Confidence),
		}
		for _, c := range l.Categories {
			label.Categories = append(label.Categories, aws.ToString(c.Name))
		}
		labels = append(labels, label)
	}
	return labels
}

func convertText(in []types.TextDetection) []TextDetection {
	out := make([]TextDetection, 0, len(in))
	for _, t := range in {
		out = append(out, TextDetection{
			Text:       aws.ToString(t.DetectedText),
			Kind:       string(t.Type),
			Confidence: score(t.Confidence),
		})
	}
	return out
}

func convertFaceRecords(in []types.FaceRecord) []database.FaceObservation {
	faces := make([]database.FaceObservation, 0, len(in))
	for _, rec := range in {
		if rec.Face == nil || aws.ToString(rec.Face.FaceId) == "" {
			continue
		}
		face := database.FaceObservation{
			FaceID:      aws.ToString(rec.Face.FaceId),
			Confidence:  score(rec.Face.Confidence),
			BoundingBox: convertBox(rec.Face.BoundingBox),
		}
		if d := rec.FaceDetail; d != nil {
			if d.BoundingBox != nil {
				face.BoundingBox = convertBox(d.BoundingBox)
			}
			if d.Quality != nil {
				face.Quality = database.Quality{
					Brightness: score(d.Quality.Brightness),
					Sharpness:  score(d.Quality.Sharpness),
				}
			}
			if d.AgeRange != nil {
				face.AgeRange = database.AgeRange{
					Low:  int(aws.ToInt32(d.AgeRange.Low)),
					High: int(aws.ToInt32(d.AgeRange.High)),
				}
			}
			if d.Gender != nil {
				face.Gender = database.Gender{
					Value:      string(d.Gender.Value),
					Confidence: score(d.Gender.Confidence),
				}
			}
			for _, e := range d.Emotions {
				face.Emotions = append(face.Emotions, database.Emotion{
					Type:       string(e.Type),
					Confidence: score(e.Confidence),
				})
			}
		}
		faces = append(faces, face)
	}
	return faces
}

func convertBox(b *types.BoundingBox) database.BoundingBox {
	if b == nil {
		return database.BoundingBox{}
	}
	return database.BoundingBox{
		Left:   float64(aws.ToFloat32(b.Left)),
		Top:    float64(aws.ToFloat32(b.Top)),
		Width:  float64(aws.ToFloat32(b.Width)),
		Height: float64(aws.ToFloat32(b.Height)),
	}
}

func convertMatches(in []types.FaceMatch) []FaceMatch {
	matches := make([]FaceMatch, 0, len(in))
	for _, m := range in {
		if m.Face == nil {
			continue
		}
		matches = append(matches, FaceMatch{
			FaceID:          aws.ToString(m.Face.FaceId),
			ExternalImageID: aws.ToString(m.Face.ExternalImageId),
			Similarity:      score(m.Similarity),
		})
	}
	return matches
}
