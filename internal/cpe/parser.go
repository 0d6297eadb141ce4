package cpe

import (
	"github.com/pkg/errors"

	"CPEStat/internal/model"
)

// segmentCount cpe、2.3 两段前缀加 11 个属性
const segmentCount = 2 + model.FieldCount

// Parse 将 cpe:2.3 格式化字符串拆分为 11 个属性。
// 段数不等于 13 时返回 ErrMalformedIdentifier，不会返回错位的记录。
// 通配符 * 、- 以及 NA 原样保留。
func Parse(raw string) (model.IdentifierRecord, error) {
	segs := splitSegments(raw)
	if len(segs) < segmentCount {
		return model.IdentifierRecord{}, errors.Wrapf(ErrMalformedIdentifier,
			"%q 只有 %d 段，需要 %d 段", raw, len(segs), segmentCount)
	}
	if len(segs) > segmentCount {
		return model.IdentifierRecord{}, errors.Wrapf(ErrMalformedIdentifier,
			"%q 有 %d 段，多于 %d 段", raw, len(segs), segmentCount)
	}

	return model.IdentifierRecord{
		Part:      segs[2],
		Vendor:    segs[3],
		Product:   segs[4],
		Version:   segs[5],
		Update:    segs[6],
		Edition:   segs[7],
		Language:  segs[8],
		SwEdition: segs[9],
		TargetSw:  segs[10],
		TargetHw:  segs[11],
		Other:     segs[12],
	}, nil
}

// splitSegments 按冒号拆分，反斜杠转义的冒号（如 foo\:bar）不作为分隔符
func splitSegments(raw string) []string {
	segs := make([]string, 0, segmentCount)
	start := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\\':
			i++
		case ':':
			segs = append(segs, raw[start:i])
			start = i + 1
		}
	}
	return append(segs, raw[start:])
}
