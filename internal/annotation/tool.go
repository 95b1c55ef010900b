package annotation

import "chartcore/internal/model"

// ToolDescriptor declares how a tool collects input: how many points it
// needs before a drawing commits, and whether committing hands control
// back to the cursor. Both the pointer path and the shortcut path consult
// this one table.
type ToolDescriptor struct {
	PointsRequired     int
	AutoResetsToCursor bool
}

// toolTable is the fixed tool set. Single-point tools reset to cursor
// after commit; two-point tools stay active for continuous drawing.
var toolTable = map[model.ToolType]ToolDescriptor{
	model.ToolTrendline:      {PointsRequired: 2},
	model.ToolRectangle:      {PointsRequired: 2},
	model.ToolFibRetracement: {PointsRequired: 2},
	model.ToolRay:            {PointsRequired: 2},
	model.ToolArrow:          {PointsRequired: 2},
	model.ToolMeasure:        {PointsRequired: 2},
	model.ToolHorizontalLine: {PointsRequired: 1, AutoResetsToCursor: true},
	model.ToolVerticalLine:   {PointsRequired: 1, AutoResetsToCursor: true},
	model.ToolText:           {PointsRequired: 1, AutoResetsToCursor: true},
}

// Describe returns the descriptor for a tool. ok is false for the cursor
// and for unknown tool types, which collect no points.
func Describe(t model.ToolType) (ToolDescriptor, bool) {
	d, ok := toolTable[t]
	return d, ok
}
