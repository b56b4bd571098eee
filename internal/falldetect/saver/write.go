package saver

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/your-org/falldetect/internal/falldetect/annotate"
	"github.com/your-org/falldetect/internal/falldetect/ids"
)

type savedFile struct {
	File   string `json:"file"`
	Kind   string `json:"kind"`
	TRelMs int    `json:"t_rel_ms"`
}

type eventJSON struct {
	EventID      string         `json:"event_id"`
	CameraID     string         `json:"camera_id"`
	TimestampUTC string         `json:"timestamp_utc"`
	Model        modelJSON      `json:"model"`
	Decision     decisionJSON   `json:"decision"`
	TrackID      int            `json:"track_id"`
	Frames       framesJSON     `json:"frames"`
	Privacy      privacyJSON    `json:"privacy"`
	System       systemJSON     `json:"system"`
}

type modelJSON struct {
	Backend      string `json:"backend"`
	ModelName    string `json:"model_name"`
	ModelVersion string `json:"model_version"`
	NumThreads   int    `json:"num_threads"`
}

type decisionJSON struct {
	AngleDegTh        float64            `json:"angle_deg_th"`
	RatioTh           float64            `json:"ratio_th"`
	HipDropPxTh       float64            `json:"hip_drop_px_th"`
	TPose             float64            `json:"T_pose"`
	TDrop             float64            `json:"T_drop"`
	TStill            float64            `json:"T_still"`
	VStill            float64            `json:"v_still"`
	MinPersonHeightPx float64            `json:"min_person_height_px"`
	CooldownSec       float64            `json:"cooldown_sec"`
	FeaturesAtTrigger featuresAtTrigger  `json:"features_at_trigger"`
}

type featuresAtTrigger struct {
	ThetaMax   float64 `json:"theta_max"`
	RatioMin   float64 `json:"ratio_min"`
	HipDrop    float64 `json:"hip_drop"`
	StillScore float64 `json:"still_score"`
}

type framesJSON struct {
	PreMs        int         `json:"pre_ms"`
	PostMs       int         `json:"post_ms"`
	InferenceFPS float64     `json:"inference_fps"`
	SavedFiles   []savedFile `json:"saved_files"`
}

type privacyJSON struct {
	FaceBlur       bool `json:"face_blur"`
	BlurKernel     int  `json:"blur_kernel"`
	RedactMetadata bool `json:"redact_metadata"`
}

type systemJSON struct {
	Host       string `json:"host,omitempty"`
	AppVersion string `json:"app_version"`
	GitCommit  string `json:"git_commit"`
}

// saveEvent writes ev's frames, optional clip, and event.json to disk
// under ev.BaseDir. Returns the event's output directory for callers
// that index it afterward.
func saveEvent(ev CompletedEvent) (string, error) {
	enforceRetentionFor(ev)

	ts, err := ids.ParseISOUTC(ev.TsUTC)
	if err != nil {
		return "", fmt.Errorf("parse event timestamp: %w", err)
	}
	outDir := ids.EventDir(ev.BaseDir, ev.CameraID, ev.EventID, ts)
	if err := ids.EnsureDir(outDir); err != nil {
		return "", fmt.Errorf("create event dir: %w", err)
	}

	ext := ".png"
	if ev.Saver.ImageFormat == "jpg" || ev.Saver.ImageFormat == "jpeg" {
		ext = ".jpg"
	}

	var savedFiles []savedFile
	for _, fr := range ev.Frames {
		img := image.Image(fr.Frame)
		var rgba *image.RGBA
		if ev.Privacy.FaceBlur {
			rgba = annotate.FaceBlur(img, fr.Pose, ev.Privacy.BlurKernel)
			img = rgba
		}

		annoImg := img
		if ev.Saver.SaveAnnotated && fr.Pose != nil {
			annoImg = annotate.DrawPose(img, fr.Pose, color.RGBA{0, 255, 0, 255})
		}

		annoName := fmt.Sprintf("annotated_%d%s", fr.TRelMs, ext)
		if err := writeImage(filepath.Join(outDir, annoName), annoImg, ext, ev.Saver.JPEGQuality); err != nil {
			return "", fmt.Errorf("write annotated frame: %w", err)
		}
		savedFiles = append(savedFiles, savedFile{File: annoName, Kind: "annotated", TRelMs: fr.TRelMs})

		if ev.Saver.SaveRaw {
			rawName := fmt.Sprintf("raw_%d%s", fr.TRelMs, ext)
			if err := writeImage(filepath.Join(outDir, rawName), img, ext, ev.Saver.JPEGQuality); err != nil {
				return "", fmt.Errorf("write raw frame: %w", err)
			}
			savedFiles = append(savedFiles, savedFile{File: rawName, Kind: "raw", TRelMs: fr.TRelMs})
		}
	}

	if ev.Saver.VideoClip.Enabled && len(ev.Frames) > 1 {
		if err := writeClip(filepath.Join(outDir, "clip.mp4"), ev.Frames, ev.Saver.VideoClip, ev.Saver.JPEGQuality); err != nil {
			return "", fmt.Errorf("write clip: %w", err)
		}
	}

	doc := eventJSON{
		EventID:      ev.EventID,
		CameraID:     ev.CameraID,
		TimestampUTC: ev.TsUTC,
		Model: modelJSON{
			Backend:    ev.ModelBackend,
			ModelName:  ev.ModelName,
			NumThreads: ev.NumThreads,
		},
		Decision: decisionJSON{
			AngleDegTh:        ev.Features.AngleDegTh,
			RatioTh:           ev.Features.RatioTh,
			HipDropPxTh:       ev.Features.HipDropPxTh,
			TPose:             ev.Features.TPose,
			TDrop:             ev.Features.TDrop,
			TStill:            ev.Features.TStill,
			VStill:            ev.Features.VStill,
			MinPersonHeightPx: ev.Features.MinPersonHeightPx,
			CooldownSec:       ev.Features.CooldownSec,
			FeaturesAtTrigger: featuresAtTrigger{
				ThetaMax:   ev.Features.ThetaMax,
				RatioMin:   ev.Features.RatioMin,
				HipDrop:    ev.Features.HipDrop,
				StillScore: ev.Features.StillScore,
			},
		},
		TrackID: 0,
		Frames: framesJSON{
			PreMs:        int(ev.Saver.PreSeconds * 1000),
			PostMs:       int(ev.Saver.PostSeconds * 1000),
			InferenceFPS: ev.InferenceFPS,
			SavedFiles:   savedFiles,
		},
		Privacy: privacyJSON{
			FaceBlur:       ev.Privacy.FaceBlur,
			BlurKernel:     ev.Privacy.BlurKernel,
			RedactMetadata: ev.Privacy.RedactMetadata,
		},
		System: systemJSON{
			Host:       ev.Host,
			AppVersion: ev.AppVersion,
			GitCommit:  ev.GitCommit,
		},
	}
	if ev.Privacy.RedactMetadata {
		doc.System.Host = ""
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal event.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "event.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("write event.json: %w", err)
	}

	return outDir, nil
}

func writeImage(path string, img image.Image, ext string, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if ext == ".jpg" {
		return jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	}
	return png.Encode(f, img)
}
