package services

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/PatriickRM/loan-banking-system/internal/models"
)

// originatorBIC identifies this institution as the debtor agent on
// outbound credit transfers.
const originatorBIC = "LOANBANK"

type ISO20022Service struct {
	validator *ValidationHelper
}

func NewISO20022Service() *ISO20022Service {
	return &ISO20022Service{
		validator: NewValidationHelper(),
	}
}

// ConvertDisbursement converts a loan disbursement to ISO20022 format
// @Summary Convert disbursement to ISO20022
// @Description Convert a loan disbursement to a pacs.008 XML message
// @Tags iso20022
// @Accept json
// @Produce json
// @Param disbursement body models.Disbursement true "Disbursement to convert"
// @Success 200 {object} object{status=string,messageType=string,xml=string}
// @Failure 500 {object} map[string]string
// @Router /iso20022/convert [post]
func (iso *ISO20022Service) ConvertDisbursement(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req models.Disbursement
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := iso.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	pacs008, err := iso.BuildPacs008(&req)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	xmlData, err := iso.ConvertToXML(pacs008)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "converted",
		"messageType": "pacs.008.001.08",
		"xml":         xmlData,
	})
}

// ProcessSettlement processes disbursement settlement
// @Summary Process settlement
// @Description Acknowledge a disbursement settlement using a pacs.002 status report
// @Tags iso20022
// @Accept json
// @Produce json
// @Param disbursement body models.Disbursement true "Disbursement to settle"
// @Success 200 {object} object{status=string,messageType=string}
// @Failure 500 {object} map[string]string
// @Router /iso20022/settlement [post]
func (iso *ISO20022Service) ProcessSettlement(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req models.Disbursement
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := iso.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	pacs002, err := iso.BuildPacs002(&req, "ACCP")
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	if err := iso.SendToSettlement(pacs002); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "settled",
		"messageType": "pacs.002.001.08",
	})
}

func (iso *ISO20022Service) SendToSettlement(doc interface{}) error {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML: %w", err)
	}

	// TODO: wire the interbank settlement endpoint once the gateway is provisioned
	log.Printf("[ISO20022] Sending to settlement: %d bytes", len(xmlData))
	return nil
}

// BuildPacs008 creates a pacs.008 FIToFICustomerCreditTransfer message for
// a loan disbursement.
func (iso *ISO20022Service) BuildPacs008(d *models.Disbursement) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()
	amount := d.Amount.InexactFloat64()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(d.Currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG", // Clearing
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(d.TransactionID)}[0],
					EndToEndId: common.Max35Text(d.ReferenceID),
					TxId:       &[]common.Max35Text{common.Max35Text(d.TransactionID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(d.Currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(originatorBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text("Loan Funding Account")}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(d.BankCode),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(d.CustomerName)}[0],
				},
				CdtrAcct: &pacs_v08.CashAccount38{
					Id: pacs_v08.AccountIdentification4Choice{
						Othr: pacs_v08.GenericAccountIdentification1{
							Id: common.Max34Text(d.AccountNumber),
						},
					},
				},
			},
		},
	}

	return doc, nil
}

// BuildPacs002 creates a pacs.002 payment status report for a disbursement.
func (iso *ISO20022Service) BuildPacs002(d *models.Disbursement, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(d.TransactionID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(d.ReferenceID)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(d.TransactionID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0], // ACCP, RJCT, ACSC
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts an ISO20022 document to an XML string.
func (iso *ISO20022Service) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
