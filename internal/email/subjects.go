package email

const (
	subjectPartnerWelcome   = "Welcome to the partner portal"
	subjectLeadConvertedFmt = "%s converted to a deal"
	subjectDealStageFmt     = "Deal %s moved to %s"
)
