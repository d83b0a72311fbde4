package extract

import "testing"

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantErr bool
	}{
		{"标准美元格式", "$1,234,567", 1234567, false},
		{"无千分位", "$850000", 850000, false},
		{"带小数", "$1,234,567.89", 1234567, false},
		{"前后有文字", "Estimated value: $425,000 as of today", 425000, false},
		{"宽松解析", "约 612000 美元", 612000, false},
		{"空字符串", "", 0, true},
		{"无数字", "暂无估值", 0, true},
		{"低于合理区间", "$12", 0, true},
		{"超出合理区间", "$9,999,999,999,999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseValue(%q) 错误 = %v, 期望错误 %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseValue(%q) = %d, 期望 %d", tt.raw, got, tt.want)
			}
		})
	}
}
