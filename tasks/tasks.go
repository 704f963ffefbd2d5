package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"lookboardapi/models"
	"lookboardapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type PanelBatchPayload struct {
	BatchID uint `json:"batch_id"`
}

type PanelSplitPayload struct {
	ResultID uint `json:"result_id"`
}

// Client initializes an asynq client for enqueuing tasks
func NewClient() (*asynq.Client, error) {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: services.GetEnv("ASYNC_BROKER_ADDRESS", "localhost:6379")}), nil
}

func NewPanelBatchTask(batchID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(PanelBatchPayload{BatchID: batchID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask("generate:panels", payload), nil

}

func NewPanelSplitTask(resultID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(PanelSplitPayload{ResultID: resultID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask("panels:split", payload), nil

}

func NewPurgeStaleBatchesTask() (*asynq.Task, error) {
	return asynq.NewTask("batches:purge", nil), nil
}

// GormPanelHistoryStore is the persistent regenerate gate.
type GormPanelHistoryStore struct {
	DB *gorm.DB
}

func (s *GormPanelHistoryStore) HasPanel(ctx context.Context, lockKey string, panel int) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.PanelHistory{}).
		Where("lock_key = ? AND panel = ?", lockKey, panel).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormPanelHistoryStore) AppendPanels(ctx context.Context, modelID uint, lockKey string, panels []int) error {
	for _, panel := range panels {
		row := models.PanelHistory{ModelProfileID: modelID, LockKey: lockKey, Panel: panel}
		err := s.DB.WithContext(ctx).
			Where("lock_key = ? AND panel = ?", lockKey, panel).
			FirstOrCreate(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func presignReadURLs(awsService services.AWSServiceProvider, keys []string) ([]string, error) {
	bucketName := os.Getenv("R2_BUCKET_NAME")
	var urls []string
	for _, key := range keys {
		url, err := awsService.GetPresignedR2FileReadURL(context.TODO(), bucketName, key)
		if err != nil {
			return nil, fmt.Errorf("error presigning %s: %v", key, err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func saveBatchFail(db *gorm.DB, batch models.PanelBatch, msg string) {
	batch.Status = "failed"
	batch.ErrorMessage = &msg
	if err := db.Save(&batch).Error; err != nil {
		sentry.CaptureException(err)
	}
}

func uploadPNG(awsService services.AWSServiceProvider, key string, content []byte) error {
	bucketName := os.Getenv("R2_BUCKET_NAME")
	uploadUrl, err := awsService.PresignLink(context.TODO(), bucketName, key)
	if err != nil {
		return fmt.Errorf("error presigning upload for %s: %v", key, err)
	}
	if _, _, err := awsService.UploadToPresignedURL(context.TODO(), bucketName, uploadUrl, content); err != nil {
		return fmt.Errorf("error uploading %s: %v", key, err)
	}
	return nil
}

// HandlePanelBatchTask runs one queued generation batch end to end: resolve
// reference URLs, run the orchestrator, upload succeeded panels to R2 and
// persist per-panel results plus history.
func HandlePanelBatchTask(ctx context.Context, t *asynq.Task, db *gorm.DB, provider services.GenerationProvider, awsService services.AWSServiceProvider) error {
	var payload PanelBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Batch: %v] Panel generation starting\n", payload.BatchID)

	var batch models.PanelBatch
	res := db.Preload("ModelProfile").Preload("Item").First(&batch, payload.BatchID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving batch for processing %v", payload.BatchID))
		return res.Error
	}
	if batch.Status == "completed" {
		fmt.Printf("[Batch: %v] Already completed, skipping\n", batch.ID)
		return nil
	}

	batch.Status = "running"
	if err := db.Save(&batch).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}

	modelRefURLs, err := presignReadURLs(awsService, batch.ModelProfile.RefImageKeys)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	itemRefURLs, err := presignReadURLs(awsService, batch.Item.RefImageKeys)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}

	var panels []int
	seen := map[int]bool{}
	for _, p := range batch.RequestedPanels {
		if seen[int(p)] {
			continue
		}
		seen[int(p)] = true
		panels = append(panels, int(p))
	}

	input := services.BatchInput{
		ModelID:      batch.ModelProfileID,
		Gender:       batch.ModelProfile.Gender,
		ModelRefs:    batch.ModelProfile.RefImageKeys,
		ItemType:     batch.Item.ItemType,
		ItemRefs:     batch.Item.RefImageKeys,
		ModelRefURLs: modelRefURLs,
		ItemRefURLs:  itemRefURLs,
		Panels:       panels,
		Mode:         services.BatchMode(batch.Mode),
	}
	if batch.StyleNotes != nil {
		input.StyleNotes = *batch.StyleNotes
	}
	if batch.RegenNotes != nil {
		input.RegenNotes = *batch.RegenNotes
	}
	if batch.Item.PoseSafetyNotes != nil {
		suggestions := map[string]string{}
		if err := json.Unmarshal([]byte(*batch.Item.PoseSafetyNotes), &suggestions); err != nil {
			sentry.CaptureException(fmt.Errorf("[Batch: %v] unreadable pose safety notes on item %d: %v", batch.ID, batch.ItemID, err))
		} else {
			input.PoseSafetySuggestions = suggestions
		}
	}

	orchestrator := services.Orchestrator{
		Provider:             provider,
		History:              &GormPanelHistoryStore{DB: db},
		BlockHighSensitivity: true,
		OnState: func(panel int, state services.PanelState) {
			fmt.Printf("[Batch: %v] Panel %d -> %s\n", batch.ID, panel, state.Status)
		},
	}

	started := time.Now()
	outcome, runErr := orchestrator.RunBatch(ctx, input)
	duration := time.Since(started).Seconds()
	batch.Duration = &duration

	var validationErr *services.ValidationError
	var costErr *services.CostSafetyError
	if runErr != nil && (errors.As(runErr, &validationErr) || errors.As(runErr, &costErr)) {
		// a retry cannot fix these
		fmt.Printf("[Batch: %v] Aborted before generation: %v\n", batch.ID, runErr)
		saveBatchFail(db, batch, runErr.Error())
		return nil
	}
	if outcome == nil {
		sentry.CaptureException(fmt.Errorf("[Batch: %v] generation failed with no outcome: %v", batch.ID, runErr))
		saveBatchFail(db, batch, runErr.Error())
		return runErr
	}

	// overwrite previous results of this batch on redelivery
	if err := db.Where("panel_batch_id = ?", batch.ID).Delete(&models.PanelResult{}).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}

	for _, panel := range panels {
		state := outcome.Panels[panel]
		result := models.PanelResult{
			PanelBatchID: batch.ID,
			Panel:        panel,
			ViaFallback:  state.ViaFallback,
		}
		if state.Status == services.PanelSucceeded {
			content, decErr := services.DecodeBase64(state.ImageBase64)
			if decErr != nil {
				sentry.CaptureException(fmt.Errorf("[Batch: %v] panel %d returned undecodable image: %v", batch.ID, panel, decErr))
				reason := fmt.Sprintf("generated image could not be decoded: %v", decErr)
				result.Status = "failed"
				result.FailReason = &reason
			} else {
				key := fmt.Sprintf("panels/%d/panel-%d.png", batch.ID, panel)
				if upErr := uploadPNG(awsService, key, content); upErr != nil {
					sentry.CaptureException(upErr)
					return upErr
				}
				result.Status = "succeeded"
				result.ImageKey = &key
			}
		} else {
			result.Status = "failed"
			if state.FailReason != "" {
				reason := state.FailReason
				result.FailReason = &reason
			}
		}
		if err := db.Create(&result).Error; err != nil {
			sentry.CaptureException(err)
			return err
		}
	}

	if runErr != nil {
		msg := runErr.Error()
		batch.ErrorMessage = &msg
		if len(outcome.Succeeded) > 0 {
			batch.Status = "completed"
		} else {
			batch.Status = "failed"
		}
	} else {
		batch.Status = "completed"
	}
	if err := db.Save(&batch).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}
	fmt.Printf("[Batch: %v] Finished in %.1fs, %d/%d panels succeeded\n", batch.ID, duration, len(outcome.Succeeded), len(panels))
	return nil
}

// HandlePanelSplitTask splits one approved panel into its two 3:4 crops and
// uploads them.
func HandlePanelSplitTask(ctx context.Context, t *asynq.Task, db *gorm.DB, awsService services.AWSServiceProvider) error {
	var payload PanelSplitPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Panel result: %v] Split starting\n", payload.ResultID)

	var result models.PanelResult
	res := db.Preload("PanelBatch.ModelProfile").Preload("PanelBatch.Item").First(&result, payload.ResultID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving panel result for split %v", payload.ResultID))
		return res.Error
	}
	if result.ImageKey == nil || result.Status != "succeeded" {
		fmt.Printf("[Panel result: %v] Nothing to split, status %s\n", result.ID, result.Status)
		return nil
	}

	bucketName := os.Getenv("R2_BUCKET_NAME")
	readURL, err := awsService.GetPresignedR2FileReadURL(context.TODO(), bucketName, *result.ImageKey)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	panelPNG, err := services.ReadFileFromUrl(readURL)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}

	left, right, err := services.SplitPanel(panelPNG)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Panel result: %v] split failed: %v", result.ID, err))
		return err
	}

	gender := result.PanelBatch.ModelProfile.Gender
	posePanel := result.Panel
	if result.ViaFallback {
		if fb, ok := services.FallbackPanel(result.Panel); ok {
			posePanel = fb
		}
	}
	poses, err := services.PanelPosePair(gender, posePanel)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}

	base := result.PanelBatch.Item.Barcode
	if base == "" {
		base = fmt.Sprintf("item-%d", result.PanelBatch.ItemID)
	}

	// redelivery replaces previous crops
	if err := db.Where("panel_result_id = ?", result.ID).Delete(&models.SplitCrop{}).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}

	sides := []struct {
		name    string
		pose    int
		content []byte
	}{
		{"left", poses.Left, left},
		{"right", poses.Right, right},
	}
	for _, side := range sides {
		fileName := fmt.Sprintf("%s_panel%d_pose%d_%s.png", base, result.Panel, side.pose, side.name)
		key := fmt.Sprintf("crops/%d/%s", result.ID, fileName)
		if err := uploadPNG(awsService, key, side.content); err != nil {
			sentry.CaptureException(err)
			return err
		}
		crop := models.SplitCrop{
			PanelResultID: result.ID,
			Side:          side.name,
			PoseNumber:    side.pose,
			FileName:      fileName,
			ImageKey:      key,
		}
		if err := db.Create(&crop).Error; err != nil {
			sentry.CaptureException(err)
			return err
		}
	}
	fmt.Printf("[Panel result: %v] Split done, 2 crops uploaded\n", result.ID)
	return nil
}

// HandlePurgeStaleBatchesTask is the nightly cleanup: batches stuck in
// pending or running for over a day are failed, and failed batches older
// than 30 days are removed together with their results.
func HandlePurgeStaleBatchesTask(ctx context.Context, t *asynq.Task, db *gorm.DB) error {
	stuckBefore := time.Now().Add(-24 * time.Hour)
	msg := "Generation did not finish in time, please try again"
	res := db.Model(&models.PanelBatch{}).
		Where("status IN ? AND updated_at < ?", []string{"pending", "running"}, stuckBefore).
		Updates(map[string]interface{}{"status": "failed", "error_message": msg})
	if res.Error != nil {
		sentry.CaptureException(res.Error)
		return res.Error
	}
	fmt.Printf("[Purge] Marked %d stuck batches as failed\n", res.RowsAffected)

	deleteBefore := time.Now().Add(-30 * 24 * time.Hour)
	var staleIDs []uint
	if err := db.Model(&models.PanelBatch{}).
		Where("status = ? AND updated_at < ?", "failed", deleteBefore).
		Pluck("id", &staleIDs).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}
	if len(staleIDs) > 0 {
		if err := db.Where("panel_batch_id IN ?", staleIDs).Delete(&models.PanelResult{}).Error; err != nil {
			sentry.CaptureException(err)
			return err
		}
		if err := db.Delete(&models.PanelBatch{}, staleIDs).Error; err != nil {
			sentry.CaptureException(err)
			return err
		}
	}
	fmt.Printf("[Purge] Removed %d old failed batches\n", len(staleIDs))
	return nil
}
