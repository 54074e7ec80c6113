package ai

import (
	"strings"
)

// Диапазоны цен по категориям, в центах.
var categoryPrices = map[string][2]int64{
	"plumbing":   {8000, 25000},
	"electrical": {10000, 30000},
	"locksmith":  {6000, 15000},
	"hvac":       {15000, 50000},
	"appliances": {8000, 20000},
	"carpentry":  {10000, 25000},
	"general":    {5000, 20000},
}

var safetyInstructions = map[string][]string{
	"plumbing": {
		"Немедленно перекройте воду, если есть протечка",
		"Не пользуйтесь электроприборами рядом с водой",
		"Подложите полотенца, чтобы ограничить ущерб",
	},
	"electrical": {
		"НЕ трогайте оголённые провода и повреждённые розетки",
		"Отключите общий автомат, если чувствуете запах гари",
		"Не тушите искры водой",
		"Покиньте помещение при сильном запахе гари",
	},
	"locksmith": {
		"Оставайтесь в безопасном месте, если вы вне дома",
		"Не пытайтесь взломать замок, можно его повредить",
	},
	"hvac": {
		"Выключите котёл, если чувствуете запах газа",
		"Откройте окна для проветривания",
		"НЕ зажигайте огонь и не щёлкайте выключателями при запахе газа",
		"При сильном запахе газа выйдите из дома и вызовите пожарных",
	},
}

var probableIssues = map[string]string{
	"plumbing":   "Возможен прорыв трубы или протечка сифона",
	"electrical": "Возможно короткое замыкание или неисправность проводки",
	"locksmith":  "Заклинил замок или повреждён механизм",
	"hvac":       "Неисправность котла или утечка в контуре",
	"appliances": "Поломка бытовой техники",
	"carpentry":  "Повреждение конструкции",
	"general":    "Требуется общий ремонт",
}

// HeuristicDiagnosis оценивает заявку по правилам без обращения к модели.
func HeuristicDiagnosis(in DiagnoseInput) *Diagnosis {
	category := strings.ToLower(in.Category)
	severity := heuristicSeverity(category, in)

	prices, ok := categoryPrices[category]
	if !ok {
		prices = categoryPrices["general"]
	}
	minPrice, maxPrice := prices[0], prices[1]
	duration := 1.5
	if severity == SeverityHigh {
		minPrice = minPrice * 13 / 10
		maxPrice = maxPrice * 15 / 10
		duration = 2.0
	}

	confidence := 75
	if in.MediaCount > 0 {
		confidence += 10
	}

	safety, ok := safetyInstructions[category]
	if !ok {
		safety = []string{"Дождитесь мастера в безопасном месте"}
	}
	issue, ok := probableIssues[category]
	if !ok {
		issue = "Требуется осмотр"
	}

	return &Diagnosis{
		Severity:               severity,
		Confidence:             confidence,
		ProbableIssue:          issue,
		SafetyInstructions:     append([]string(nil), safety...),
		EstimatedDurationHours: duration,
		PriceMin:               minPrice,
		PriceMax:               maxPrice,
	}
}

func heuristicSeverity(category string, in DiagnoseInput) string {
	switch {
	case in.Sparks || in.BurningSmell || in.GasSmell:
		return SeverityHigh
	case in.RunningWater && category == "plumbing":
		return SeverityHigh
	}
	switch strings.ToLower(strings.TrimSpace(in.HowLong)) {
	case "poco", "oggi", "hours":
		return SeverityMedium
	}
	return SeverityLow
}
