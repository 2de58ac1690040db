package service

import (
	"context"
	"fmt"

	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/repository"
)

// taskSeed 生成器产出的一条任务原料
type taskSeed struct {
	taskType    string
	workContent string
	quantity    int
	autoQty     bool
	artworkID   *string
	dieID       *string
	productID   *string
	materialID  *string
	foilID      *string
	embID       *string
}

// entityID 自然键里的库实体 ID
func (s taskSeed) entityID() *string {
	switch {
	case s.artworkID != nil:
		return s.artworkID
	case s.dieID != nil:
		return s.dieID
	case s.productID != nil:
		return s.productID
	case s.materialID != nil:
		return s.materialID
	case s.foilID != nil:
		return s.foilID
	case s.embID != nil:
		return s.embID
	}
	return nil
}

type taskGenerator func(wo *entity.WorkOrder, proc *entity.Process) []taskSeed

// 生成规则到生成器的查表，规则值未登记时落到 general
var taskGenerators = map[string]taskGenerator{
	entity.GenRuleArtwork:  generateArtworkSeeds,
	entity.GenRuleDie:      generateDieSeeds,
	entity.GenRuleProduct:  generateProductSeeds,
	entity.GenRuleMaterial: generateMaterialSeeds,
	entity.GenRulePlate:    generatePlateSeeds,
	entity.GenRuleGeneral:  generateGeneralSeeds,
}

func generateArtworkSeeds(wo *entity.WorkOrder, _ *entity.Process) []taskSeed {
	seeds := make([]taskSeed, 0, len(wo.Artworks))
	for i := range wo.Artworks {
		link := &wo.Artworks[i]
		content := "制版"
		if link.Artwork != nil {
			content = fmt.Sprintf("制版: %s (%s)", link.Artwork.Name, link.Artwork.Code)
		}
		seeds = append(seeds, taskSeed{
			taskType:    entity.TaskTypePlateMaking,
			workContent: content,
			quantity:    1,
			artworkID:   &link.ArtworkID,
		})
	}
	return seeds
}

func generateDieSeeds(wo *entity.WorkOrder, _ *entity.Process) []taskSeed {
	seeds := make([]taskSeed, 0, len(wo.Dies))
	for i := range wo.Dies {
		link := &wo.Dies[i]
		content := "啤切"
		if link.Die != nil {
			content = fmt.Sprintf("啤切: %s (%s)", link.Die.Name, link.Die.Code)
		}
		seeds = append(seeds, taskSeed{
			taskType:    entity.TaskTypeDieCutting,
			workContent: content,
			quantity:    1,
			dieID:       &link.DieID,
		})
	}
	return seeds
}

func generateProductSeeds(wo *entity.WorkOrder, _ *entity.Process) []taskSeed {
	seeds := make([]taskSeed, 0, len(wo.Products))
	for i := range wo.Products {
		link := &wo.Products[i]
		content := "包装"
		if link.Product != nil {
			content = fmt.Sprintf("包装: %s (%s)", link.Product.Name, link.Product.Code)
		}
		seeds = append(seeds, taskSeed{
			taskType:    entity.TaskTypePackaging,
			workContent: content,
			quantity:    link.Quantity,
			autoQty:     true,
			productID:   &link.ProductID,
		})
	}
	return seeds
}

func generateMaterialSeeds(wo *entity.WorkOrder, _ *entity.Process) []taskSeed {
	seeds := make([]taskSeed, 0, len(wo.Materials))
	for i := range wo.Materials {
		link := &wo.Materials[i]
		if !link.NeedCutting {
			continue
		}
		content := "开料"
		if link.Material != nil {
			content = fmt.Sprintf("开料: %s %s", link.Material.Name, link.MaterialSize)
		}
		seeds = append(seeds, taskSeed{
			taskType:    entity.TaskTypeCutting,
			workContent: content,
			quantity:    link.MaterialUsage,
			materialID:  &link.MaterialID,
		})
	}
	return seeds
}

func generatePlateSeeds(wo *entity.WorkOrder, proc *entity.Process) []taskSeed {
	if proc.Code == entity.ProcessCodeEmb {
		seeds := make([]taskSeed, 0, len(wo.EmbossingPlates))
		for i := range wo.EmbossingPlates {
			link := &wo.EmbossingPlates[i]
			content := "压纹"
			if link.EmbossingPlate != nil {
				content = fmt.Sprintf("压纹: %s (%s)", link.EmbossingPlate.Name, link.EmbossingPlate.Code)
			}
			seeds = append(seeds, taskSeed{
				taskType:    entity.TaskTypeEmbossing,
				workContent: content,
				quantity:    wo.ProductionQuantity,
				embID:       &link.EmbossingPlateID,
			})
		}
		return seeds
	}

	seeds := make([]taskSeed, 0, len(wo.FoilingPlates))
	for i := range wo.FoilingPlates {
		link := &wo.FoilingPlates[i]
		content := "烫金"
		if link.FoilingPlate != nil {
			content = fmt.Sprintf("烫金: %s (%s)", link.FoilingPlate.Name, link.FoilingPlate.Code)
		}
		seeds = append(seeds, taskSeed{
			taskType:    entity.TaskTypeFoiling,
			workContent: content,
			quantity:    wo.ProductionQuantity,
			foilID:      &link.FoilingPlateID,
		})
	}
	return seeds
}

func generateGeneralSeeds(wo *entity.WorkOrder, proc *entity.Process) []taskSeed {
	taskType := entity.TaskTypeGeneral
	if proc.Code == entity.ProcessCodePrint {
		taskType = entity.TaskTypePrinting
	}
	return []taskSeed{{
		taskType:    taskType,
		workContent: proc.Name,
		quantity:    wo.ProductionQuantity,
	}}
}

// generateTasks 按工序生成规则产出任务。逐实体幂等：自然键
// (工序, 任务类型, 实体) 已存在任务时跳过该实体。
func generateTasks(ctx context.Context, repos *repository.Repositories, wo *entity.WorkOrder, wop *entity.WorkOrderProcess, proc *entity.Process) ([]entity.WorkOrderTask, error) {
	gen, ok := taskGenerators[proc.TaskGenerationRule]
	if !ok {
		gen = generateGeneralSeeds
	}
	seeds := gen(wo, proc)

	status := entity.TaskStatusPending
	if wo.ApprovalStatus != entity.ApprovalApproved {
		status = entity.TaskStatusDraft
	}

	var created []entity.WorkOrderTask
	for _, seed := range seeds {
		existing, err := repos.Task.FindByNaturalKey(ctx, wop.ID, seed.taskType, seed.entityID())
		if err != nil && err != repository.ErrNotFound {
			return nil, err
		}
		if existing != nil {
			continue
		}

		task := entity.WorkOrderTask{
			ID:                    newID(),
			WorkOrderProcessID:    wop.ID,
			TaskType:              seed.taskType,
			WorkContent:           seed.workContent,
			ProductionQuantity:    seed.quantity,
			AutoCalculateQuantity: seed.autoQty,
			ArtworkID:             seed.artworkID,
			DieID:                 seed.dieID,
			ProductID:             seed.productID,
			MaterialID:            seed.materialID,
			FoilingPlateID:        seed.foilID,
			EmbossingPlateID:      seed.embID,
			AssignedDepartmentID:  wop.DepartmentID,
			Priority:              wo.Priority,
			Status:                status,
			Version:               1,
		}
		created = append(created, task)
	}

	if err := repos.Task.BatchCreate(ctx, created); err != nil {
		return nil, fmt.Errorf("生成任务失败: %w", err)
	}
	return created, nil
}
