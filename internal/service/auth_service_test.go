package service

import "testing"

func TestGenerateReferralCode(t *testing.T) {
	// 123456789 -> хвост 456789, сумма цифр 39
	if got := GenerateReferralCode(123456789); got != "CG4567899" {
		t.Fatalf("неверный код: %s", got)
	}
	// короткий id дополняется нулями
	if got := GenerateReferralCode(777); got != "CG0007771" {
		t.Fatalf("неверный код для короткого id: %s", got)
	}
}

func TestReferralCodeFromStartParam(t *testing.T) {
	cases := map[string]string{
		"ref_CG4567899": "CG4567899",
		"CG0007771":     "CG0007771",
		"":              "",
		"promo_2024":    "",
	}
	for in, want := range cases {
		if got := ReferralCodeFromStartParam(in); got != want {
			t.Errorf("start_param %q: ожидали %q, получили %q", in, want, got)
		}
	}
}

func TestReferralLink(t *testing.T) {
	if got := ReferralLink("@CrazyGiftBot", "CG0007771"); got != "https://t.me/CrazyGiftBot?start=ref_CG0007771" {
		t.Fatalf("неверная ссылка: %s", got)
	}
}
