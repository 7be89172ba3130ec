package reports

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"github.com/kev-hfmn/review-reply-app-sub003/utils"
	"github.com/xuri/excelize/v2"
)

// BuildReviewsWorkbook renders a tenant's reviews into an xlsx workbook.
func BuildReviewsWorkbook(reviews []models.Review) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("Sheet1")
	if err != nil {
		return nil, err
	}

	headers := []string{"Customer", "Rating", "Review", "Date", "Status", "AI Reply", "Final Reply", "Posted At", "Automated"}
	for i, h := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		f.SetCellValue("Sheet1", col+"1", h)
	}

	for i, rv := range reviews {
		row := fmt.Sprint(i + 2)
		f.SetCellValue("Sheet1", "A"+row, rv.CustomerName)
		f.SetCellValue("Sheet1", "B"+row, rv.Rating)
		f.SetCellValue("Sheet1", "C"+row, rv.ReviewText)
		f.SetCellValue("Sheet1", "D"+row, rv.ReviewDate.Format("2006-01-02"))
		f.SetCellValue("Sheet1", "E"+row, string(rv.Status))
		f.SetCellValue("Sheet1", "F"+row, utils.DereferencePtr(rv.AiReply))
		f.SetCellValue("Sheet1", "G"+row, utils.DereferencePtr(rv.FinalReply))
		if rv.PostedAt != nil {
			f.SetCellValue("Sheet1", "H"+row, rv.PostedAt.Format("2006-01-02 15:04"))
		}
		f.SetCellValue("Sheet1", "I"+row, rv.AutomatedReply)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// ExportReviewsToGCS builds the workbook and uploads it; returns the object URL.
func ExportReviewsToGCS(ctx context.Context, businessId string) (string, error) {
	reviews, err := models.ListReviews(ctx, businessId)
	if err != nil {
		return "", err
	}
	buf, err := BuildReviewsWorkbook(reviews)
	if err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("exports/%s/reviews-%s.xlsx", businessId, time.Now().UTC().Format("20060102-150405"))
	return utils.SaveObjectToGCS(ctx, objectName,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
