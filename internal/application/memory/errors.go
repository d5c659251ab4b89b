// Package memory 实现章节记忆：摘要、事件、伏笔、角色状态与上下文组装
package memory

import (
	"errors"

	"novel-memory-api/internal/domain/entity"
	apperrors "novel-memory-api/pkg/errors"
)

func dbError(err error, message string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Wrap(err, apperrors.CodeDatabaseError, message)
}

func invalidParam(err error) error {
	return apperrors.ErrInvalidParam.WithDetail(err.Error()).WithError(err)
}

// foreshadowError 将状态机错误映射为对外错误码
func foreshadowError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, entity.ErrForeshadowTerminal),
		errors.Is(err, entity.ErrForeshadowTransition),
		errors.Is(err, entity.ErrResolutionChapterRequired):
		return apperrors.ErrIllegalTransition.WithDetail(err.Error()).WithError(err)
	case errors.Is(err, entity.ErrResolutionNotesRequired),
		errors.Is(err, entity.ErrResolutionBeforePlanted):
		return invalidParam(err)
	default:
		return invalidParam(err)
	}
}
